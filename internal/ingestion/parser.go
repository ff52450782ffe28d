package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"ShareVault/internal/auth"
	"ShareVault/internal/batch"
	"ShareVault/internal/event"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ParseRawCommand converts a RawCommand (JSON bytes + command type
// string) into a typed event.Command. The ingestion shell validates
// and converts raw commands before sending to the core.
func ParseRawCommand(raw RawCommand, commandType string) (event.Command, error) {
	switch commandType {
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdraw":
		return parseWithdraw(raw.Data)
	case "Transfer":
		return parseTransfer(raw.Data)
	case "SetApproval":
		return parseSetApproval(raw.Data)
	case "ClientDeposit":
		return parseClientDeposit(raw.Data)
	case "ClientWithdraw":
		return parseClientWithdraw(raw.Data)
	case "Batch":
		return parseBatch(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Addresses
// are 0x-prefixed hex.

type vaultOpJSON struct {
	CommandID   string `json:"command_id"`
	Caller      string `json:"caller"`
	Token       string `json:"token"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      int64  `json:"amount"`
	Shares      int64  `json:"shares"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j vaultOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := parseAddress("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	tok, err := parseAddress("token", j.Token)
	if err != nil {
		return nil, err
	}
	from, err := parseAddress("from", j.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", j.To)
	if err != nil {
		return nil, err
	}
	return &event.Deposit{
		CommandID: commandID,
		Caller:    caller,
		Token:     tok,
		From:      from,
		To:        to,
		Amount:    j.Amount,
		Shares:    j.Shares,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseWithdraw(data []byte) (*event.Withdraw, error) {
	var j vaultOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := parseAddress("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	tok, err := parseAddress("token", j.Token)
	if err != nil {
		return nil, err
	}
	from, err := parseAddress("from", j.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", j.To)
	if err != nil {
		return nil, err
	}
	return &event.Withdraw{
		CommandID: commandID,
		Caller:    caller,
		Token:     tok,
		From:      from,
		To:        to,
		Amount:    j.Amount,
		Shares:    j.Shares,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseTransfer(data []byte) (*event.Transfer, error) {
	var j vaultOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Transfer: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := parseAddress("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	tok, err := parseAddress("token", j.Token)
	if err != nil {
		return nil, err
	}
	from, err := parseAddress("from", j.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", j.To)
	if err != nil {
		return nil, err
	}
	return &event.Transfer{
		CommandID: commandID,
		Caller:    caller,
		Token:     tok,
		From:      from,
		To:        to,
		Shares:    j.Shares,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type approvalJSON struct {
	CommandID   string         `json:"command_id"`
	Caller      string         `json:"caller"`
	User        string         `json:"user"`
	Agent       string         `json:"agent"`
	Approved    bool           `json:"approved"`
	Nonce       uint64         `json:"nonce"`
	Signature   auth.Signature `json:"signature"`
	Sequence    int64          `json:"sequence"`
	TimestampUs int64          `json:"timestamp_us"`
}

func parseSetApproval(data []byte) (*event.SetApproval, error) {
	var j approvalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetApproval: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := parseAddress("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	user, err := parseAddress("user", j.User)
	if err != nil {
		return nil, err
	}
	agent, err := parseAddress("agent", j.Agent)
	if err != nil {
		return nil, err
	}
	return &event.SetApproval{
		CommandID: commandID,
		Caller:    caller,
		User:      user,
		Agent:     agent,
		Approved:  j.Approved,
		Nonce:     j.Nonce,
		Signature: j.Signature,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type clientDepositJSON struct {
	CommandID        string `json:"command_id"`
	Caller           string `json:"caller"`
	Token            string `json:"token"`
	Amount           int64  `json:"amount"`
	FromVaultBalance bool   `json:"from_vault_balance"`
	Sequence         int64  `json:"sequence"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parseClientDeposit(data []byte) (*event.ClientDeposit, error) {
	var j clientDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClientDeposit: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := parseAddress("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	tok, err := parseAddress("token", j.Token)
	if err != nil {
		return nil, err
	}
	return &event.ClientDeposit{
		CommandID:        commandID,
		Caller:           caller,
		Token:            tok,
		Amount:           j.Amount,
		FromVaultBalance: j.FromVaultBalance,
		Sequence:         j.Sequence,
		Timestamp:        time.UnixMicro(j.TimestampUs),
	}, nil
}

type clientWithdrawJSON struct {
	CommandID      string `json:"command_id"`
	Caller         string `json:"caller"`
	EntryID        int64  `json:"entry_id"`
	Amount         int64  `json:"amount"`
	ToVaultBalance bool   `json:"to_vault_balance"`
	Sequence       int64  `json:"sequence"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func parseClientWithdraw(data []byte) (*event.ClientWithdraw, error) {
	var j clientWithdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClientWithdraw: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := parseAddress("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &event.ClientWithdraw{
		CommandID:      commandID,
		Caller:         caller,
		EntryID:        j.EntryID,
		Amount:         j.Amount,
		ToVaultBalance: j.ToVaultBalance,
		Sequence:       j.Sequence,
		Timestamp:      time.UnixMicro(j.TimestampUs),
	}, nil
}

type batchJSON struct {
	CommandID    string            `json:"command_id"`
	Caller       string            `json:"caller"`
	Operations   []batch.Operation `json:"operations"`
	RevertOnFail bool              `json:"revert_on_fail"`
	Sequence     int64             `json:"sequence"`
	TimestampUs  int64             `json:"timestamp_us"`
}

func parseBatch(data []byte) (*event.Batch, error) {
	var j batchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Batch: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := parseAddress("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	if len(j.Operations) == 0 {
		return nil, fmt.Errorf("parse Batch: empty operation list")
	}
	return &event.Batch{
		CommandID:    commandID,
		Caller:       caller,
		Operations:   j.Operations,
		RevertOnFail: j.RevertOnFail,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("parse %s: %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}
