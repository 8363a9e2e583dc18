package password

// Version represents the version of the password hashing algorithm
type Version int

const (
	// V1 is the original bcrypt implementation
	V1 Version = 1
	// V2 adds salt and uses a higher cost
	V2 Version = 2

	// CurrentVersion is the version used for new password hashes
	CurrentVersion = V2
)

// Hasher defines the interface for password hashing implementations
type Hasher interface {
	// Hash hashes a password
	Hash(password string) (string, error)

	// Verify checks if the provided password matches the stored hash
	Verify(password, hashedPassword string) (bool, error)
}

// NewHasher returns the hasher for the given version
func NewHasher(version Version) Hasher {
	switch version {
	case V1:
		return &BcryptV1Hasher{}
	default:
		return &BcryptV2Hasher{}
	}
}

// DefaultHasher returns the hasher for CurrentVersion
func DefaultHasher() Hasher {
	return NewHasher(CurrentVersion)
}
