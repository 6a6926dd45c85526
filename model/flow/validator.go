package flow

// Validator is a member of the validator set which owns block production slots.
type Validator struct {
	NodeID    Identifier
	PublicKey []byte // compressed secp256k1 public key
	Address   string // libp2p multiaddress, optional
}
