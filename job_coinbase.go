package stratumcore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// RewardType selects the coinbase layout expected by the coin.
type RewardType int

const (
	RewardPOW RewardType = iota
	// RewardPOS coins carry an nTime field right after the tx version.
	RewardPOS
)

func (r RewardType) String() string {
	if r == RewardPOS {
		return "POS"
	}
	return "POW"
}

func parseRewardType(s string) (RewardType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "POW":
		return RewardPOW, nil
	case "POS":
		return RewardPOS, nil
	default:
		return RewardPOW, fmt.Errorf("unknown reward type %q", s)
	}
}

// Recipient takes a fixed percentage of the coinbase value.
type Recipient struct {
	Script  []byte
	Percent float64
}

// coinbasePayoutOutput describes a single non-witness-commitment output in a
// coinbase transaction.
type coinbasePayoutOutput struct {
	Script []byte
	Value  int64
}

const maxCoinbasePayoutOutputs = 32

func validateCoinbasePayoutOutputs(outputs []coinbasePayoutOutput) error {
	if len(outputs) == 0 {
		return fmt.Errorf("at least one payout output is required")
	}
	if len(outputs) > maxCoinbasePayoutOutputs {
		return fmt.Errorf("too many payout outputs: %d > %d", len(outputs), maxCoinbasePayoutOutputs)
	}
	for i, o := range outputs {
		if len(o.Script) == 0 {
			return fmt.Errorf("payout output %d script required", i)
		}
		if o.Value < 0 {
			return fmt.Errorf("payout output %d value cannot be negative", i)
		}
	}
	return nil
}

// splitCoinbaseValue pays each recipient its percentage (rounded down) and
// leaves the remainder to the pool output, which comes first.
func splitCoinbaseValue(poolScript []byte, total int64, recipients []Recipient) ([]coinbasePayoutOutput, error) {
	if total < 0 {
		return nil, fmt.Errorf("coinbase value cannot be negative")
	}
	outputs := make([]coinbasePayoutOutput, 1, 1+len(recipients))
	remaining := total
	for i, r := range recipients {
		if r.Percent < 0 || r.Percent > 100 || math.IsNaN(r.Percent) {
			return nil, fmt.Errorf("recipient %d percent %v out of range", i, r.Percent)
		}
		amount := int64(math.Floor(float64(total) * r.Percent / 100))
		if amount > remaining {
			return nil, fmt.Errorf("recipient shares exceed coinbase value")
		}
		remaining -= amount
		outputs = append(outputs, coinbasePayoutOutput{Script: r.Script, Value: amount})
	}
	outputs[0] = coinbasePayoutOutput{Script: poolScript, Value: remaining}
	if err := validateCoinbasePayoutOutputs(outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

func buildCoinbaseOutputs(commitmentScript []byte, payouts []coinbasePayoutOutput) []byte {
	var outputs bytes.Buffer
	outputCount := uint64(len(payouts))
	if len(commitmentScript) > 0 {
		outputCount++
	}
	writeVarInt(&outputs, outputCount)
	if len(commitmentScript) > 0 {
		writeUint64LE(&outputs, 0)
		writeVarInt(&outputs, uint64(len(commitmentScript)))
		outputs.Write(commitmentScript)
	}
	for _, o := range payouts {
		writeUint64LE(&outputs, uint64(o.Value))
		writeVarInt(&outputs, uint64(len(o.Script)))
		outputs.Write(o.Script)
	}
	return outputs.Bytes()
}

func serializeNumberScript(n int64) []byte {
	if n >= 1 && n <= 16 {
		return []byte{byte(0x50 + n)}
	}
	l := 1
	buf := make([]byte, 9)
	for n > 0x7f {
		buf[l] = byte(n & 0xff)
		l++
		n >>= 8
	}
	buf[0] = byte(l)
	buf[l] = byte(n)
	return buf[:l+1]
}

// normalizeCoinbaseMessage trims spaces and wraps the message in '/'.
func normalizeCoinbaseMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	msg = strings.TrimPrefix(msg, "/")
	msg = strings.TrimSuffix(msg, "/")
	if msg == "" {
		return defaultCoinbaseMessage
	}
	return "/" + msg + "/"
}

func serializeStringScript(s string) []byte {
	return append(appendVarInt(nil, uint64(len(s))), s...)
}

// coinbaseParts is a coinbase transaction split around the extranonce
// placeholder.
type coinbaseParts struct {
	coinb1 []byte
	coinb2 []byte
	// placeholderLen is the number of bytes extranonce1 and extranonce2
	// must supply together.
	placeholderLen int
}

type coinbaseSpec struct {
	height           int64
	curTime          int64
	flags            []byte
	commitmentScript []byte
	payouts          []coinbasePayoutOutput
	placeholderLen   int
	message          string
	reward           RewardType
	txMessages       bool
}

// buildCoinbaseParts lays out
//
//	version [ntime] vin(1) prevout scriptSig(height flags time len <placeholder> message) sequence outputs locktime [comment]
//
// and returns the bytes before and after the placeholder.
func buildCoinbaseParts(spec coinbaseSpec) (coinbaseParts, error) {
	if spec.placeholderLen <= 0 || spec.placeholderLen > 0x4b {
		return coinbaseParts{}, fmt.Errorf("invalid extranonce placeholder length %d", spec.placeholderLen)
	}
	msg := normalizeCoinbaseMessage(spec.message)

	scriptSigPart1 := bytes.Join([][]byte{
		serializeNumberScript(spec.height),
		spec.flags,
		serializeNumberScript(spec.curTime),
		{byte(spec.placeholderLen)},
	}, nil)
	fixedLen := len(scriptSigPart1) + spec.placeholderLen
	msg, err := clampCoinbaseMessage(msg, maxCoinbaseScript-fixedLen)
	if err != nil {
		return coinbaseParts{}, err
	}
	scriptSigPart2 := serializeStringScript(msg)
	scriptSigLen := fixedLen + len(scriptSigPart2)

	txVersion := uint32(1)
	if spec.txMessages {
		txVersion = 2
	}

	var p1 bytes.Buffer
	writeUint32LE(&p1, txVersion)
	if spec.reward == RewardPOS {
		writeUint32LE(&p1, uint32(spec.curTime))
	}
	writeVarInt(&p1, 1)
	p1.Write(make([]byte, 32))
	writeUint32LE(&p1, 0xffffffff)
	writeVarInt(&p1, uint64(scriptSigLen))
	p1.Write(scriptSigPart1)

	var p2 bytes.Buffer
	p2.Write(scriptSigPart2)
	writeUint32LE(&p2, 0) // sequence
	p2.Write(buildCoinbaseOutputs(spec.commitmentScript, spec.payouts))
	writeUint32LE(&p2, 0) // locktime
	if spec.txMessages {
		p2.Write(serializeStringScript(msg))
	}

	return coinbaseParts{
		coinb1:         p1.Bytes(),
		coinb2:         p2.Bytes(),
		placeholderLen: spec.placeholderLen,
	}, nil
}

// clampCoinbaseMessage trims the message body until its serialized form
// fits in limit bytes.
func clampCoinbaseMessage(msg string, limit int) (string, error) {
	if len(serializeStringScript(msg)) <= limit {
		return msg, nil
	}
	body := strings.TrimSuffix(strings.TrimPrefix(msg, "/"), "/")
	for len(body) > 0 {
		body = body[:len(body)-1]
		candidate := "/" + body + "/"
		if len(serializeStringScript(candidate)) <= limit {
			logger.Debug("clamped coinbase message", "limit", limit, "message", candidate)
			return candidate, nil
		}
	}
	if limit >= 1 {
		return "", nil
	}
	return "", fmt.Errorf("coinbase scriptSig exceeds %d bytes before message", maxCoinbaseScript)
}

// assemble splices the extranonce pair into the placeholder.
func (p coinbaseParts) assemble(extranonce1, extranonce2 []byte) ([]byte, error) {
	if len(extranonce1)+len(extranonce2) != p.placeholderLen {
		return nil, fmt.Errorf("extranonce pair is %d bytes, placeholder is %d", len(extranonce1)+len(extranonce2), p.placeholderLen)
	}
	out := make([]byte, 0, len(p.coinb1)+p.placeholderLen+len(p.coinb2))
	out = append(out, p.coinb1...)
	out = append(out, extranonce1...)
	out = append(out, extranonce2...)
	out = append(out, p.coinb2...)
	return out, nil
}

func (p coinbaseParts) hex() (string, string) {
	return hex.EncodeToString(p.coinb1), hex.EncodeToString(p.coinb2)
}
