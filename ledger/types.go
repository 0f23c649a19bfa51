package ledger

import "encoding/json"

// NymData is the ledger's view of a DID, shaped after the indy
// get-nym reply.
type NymData struct {
	Did     string `json:"dest"`
	Verkey  string `json:"verkey"`
	Role    string `json:"role,omitempty"`
	SeqNo   int64  `json:"seqNo"`
	TxnTime int64  `json:"txnTime"`
}

// NymRequest binds a DID to a verkey. Submissions for an already
// registered DID must be signed by the currently published key; first
// registrations are self-signed by the new key.
type NymRequest struct {
	ReqID     string `json:"reqId" validate:"required"`
	Did       string `json:"did" validate:"required"`
	Verkey    string `json:"verkey" validate:"required"`
	Signature string `json:"signature,omitempty"`
}

// SigningBytes is the canonical payload covered by the request
// signature: the request JSON without the signature field.
func (r *NymRequest) SigningBytes() ([]byte, error) {
	unsigned := *r
	unsigned.Signature = ""
	return json.Marshal(&unsigned)
}
