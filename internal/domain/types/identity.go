package types

// Identity is the root key pair of a store. Every channel key pair the store
// hands out is derived from SecretKey.
type Identity struct {
	SecretKey SecretKey `json:"secret_key"`
	PublicKey PublicKey `json:"public_key"`
}
