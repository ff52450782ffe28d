package auth

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type signatureJSON struct {
	V uint8         `json:"v"`
	R hexutil.Bytes `json:"r"`
	S hexutil.Bytes `json:"s"`
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{
		V: s.V,
		R: hexutil.Bytes(s.R[:]),
		S: hexutil.Bytes(s.S[:]),
	})
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var j signatureJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if j.V == 0 && len(j.R) == 0 && len(j.S) == 0 {
		*s = Signature{}
		return nil
	}
	if len(j.R) != 32 || len(j.S) != 32 {
		return fmt.Errorf("signature r/s must be 32 bytes, got %d/%d", len(j.R), len(j.S))
	}
	s.V = j.V
	copy(s.R[:], j.R)
	copy(s.S[:], j.S)
	return nil
}
