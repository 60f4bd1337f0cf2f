package events

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sugawarayuuta/sonnet"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Encode renders evt as a protobuf Struct, the binary frame format used on
// the WebSocket stream and the Redis bus.
func Encode(evt domain.Event) ([]byte, error) {
	fields := map[string]any{
		"seq":       evt.Seq,
		"topic":     string(evt.Topic),
		"epoch":     evt.Epoch,
		"timestamp": evt.Timestamp,
	}
	if evt.Account != nil {
		fields["account"] = evt.Account.Hex()
	}
	if len(evt.Payload) > 0 {
		var payload map[string]any
		if err := sonnet.Unmarshal(evt.Payload, &payload); err != nil {
			return nil, fmt.Errorf("events: decode payload of %d: %w", evt.Seq, err)
		}
		fields["payload"] = payload
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("events: build frame %d: %w", evt.Seq, err)
	}
	return proto.Marshal(st)
}

// Decode is the inverse of Encode.
func Decode(b []byte) (domain.Event, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return domain.Event{}, fmt.Errorf("events: unmarshal frame: %w", err)
	}
	m := st.AsMap()

	evt := domain.Event{
		Seq:       number(m["seq"]),
		Topic:     domain.Topic(str(m["topic"])),
		Epoch:     number(m["epoch"]),
		Timestamp: number(m["timestamp"]),
	}
	if acct := str(m["account"]); acct != "" {
		if !common.IsHexAddress(acct) {
			return domain.Event{}, fmt.Errorf("events: bad account %q", acct)
		}
		a := common.HexToAddress(acct)
		evt.Account = &a
	}
	if p, ok := m["payload"]; ok {
		raw, err := sonnet.Marshal(p)
		if err != nil {
			return domain.Event{}, fmt.Errorf("events: encode payload: %w", err)
		}
		evt.Payload = raw
	}
	return evt, nil
}

func number(v any) uint64 {
	f, _ := v.(float64)
	return uint64(f)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
