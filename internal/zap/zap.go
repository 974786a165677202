package zap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const (
	KindZapRequest = 9734
	KindZapReceipt = 9735
)

var (
	ErrInvalidReceipt = errors.New("invalid zap receipt")
	ErrInvalidEmitter = errors.New("invalid zap receipt emitter")
	ErrInvalidRequest = errors.New("invalid zap request")
)

// Signer holds the service signing key used for zap requests. The payment
// provider echoes the signed request back inside the receipt, which is how a
// receipt is correlated to the order that produced it.
type Signer struct {
	privateKey string
	PublicKey  string
	Relays     []string
}

func NewSigner(privateKeyHex string, relays []string) (*Signer, error) {
	pub, err := nostr.GetPublicKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}
	return &Signer{privateKey: privateKeyHex, PublicKey: pub, Relays: relays}, nil
}

// BuildZapRequest constructs and signs the kind-9734 event for an order. The
// e tag carries the order's event reference id.
func (s *Signer) BuildZapRequest(reference string, amountMilliSats int64) (*nostr.Event, error) {
	relayTag := nostr.Tag{"relays"}
	relayTag = append(relayTag, s.Relays...)

	event := nostr.Event{
		Kind:      KindZapRequest,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Content:   "",
		Tags: nostr.Tags{
			nostr.Tag{"p", s.PublicKey},
			nostr.Tag{"amount", strconv.FormatInt(amountMilliSats, 10)},
			relayTag,
			nostr.Tag{"e", reference},
		},
	}
	if err := event.Sign(s.privateKey); err != nil {
		return nil, fmt.Errorf("failed to sign zap request: %w", err)
	}
	return &event, nil
}

// OrderReference extracts the order correlation id from a receipt's e tag.
func OrderReference(event nostr.Event) (string, bool) {
	for _, tag := range event.Tags {
		if tag.StartsWith([]string{"e"}) {
			return tag.Value(), true
		}
	}
	return "", false
}

func firstTag(event nostr.Event, name string) (string, bool) {
	for _, tag := range event.Tags {
		if tag.StartsWith([]string{name}) {
			return tag.Value(), true
		}
	}
	return "", false
}

// ValidateReceipt checks everything spec'd for settlement entry A: receipt
// signature, trusted emitter, and that the embedded zap request was signed by
// us, references this order, and carries the order's exact amount. When a
// bolt11 tag is present its amount is cross-checked too.
func ValidateReceipt(receipt nostr.Event, trustedPubkey, senderPubkey, reference string, wantMilliSats int64) error {
	if receipt.Kind != KindZapReceipt {
		return fmt.Errorf("%w: kind %d", ErrInvalidReceipt, receipt.Kind)
	}
	if ok, err := receipt.CheckSignature(); err != nil || !ok {
		return fmt.Errorf("%w: bad signature", ErrInvalidReceipt)
	}
	if receipt.PubKey != trustedPubkey {
		return fmt.Errorf("%w: %s", ErrInvalidEmitter, receipt.PubKey)
	}

	description, ok := firstTag(receipt, "description")
	if !ok {
		return fmt.Errorf("%w: missing description tag", ErrInvalidRequest)
	}
	var request nostr.Event
	if err := json.Unmarshal([]byte(description), &request); err != nil {
		return fmt.Errorf("%w: unparseable description: %v", ErrInvalidRequest, err)
	}
	if request.Kind != KindZapRequest {
		return fmt.Errorf("%w: kind %d", ErrInvalidRequest, request.Kind)
	}
	if ok, err := request.CheckSignature(); err != nil || !ok {
		return fmt.Errorf("%w: bad signature", ErrInvalidRequest)
	}
	if request.PubKey != senderPubkey {
		return fmt.Errorf("%w: not our request", ErrInvalidRequest)
	}

	ref, ok := firstTag(request, "e")
	if !ok || ref != reference {
		return fmt.Errorf("%w: reference mismatch", ErrInvalidRequest)
	}

	amount, ok := firstTag(request, "amount")
	if !ok {
		return fmt.Errorf("%w: missing amount tag", ErrInvalidRequest)
	}
	msats, err := strconv.ParseInt(amount, 10, 64)
	if err != nil || msats != wantMilliSats {
		return fmt.Errorf("%w: amount mismatch", ErrInvalidRequest)
	}

	if bolt11, ok := firstTag(receipt, "bolt11"); ok {
		decoded, err := decodepay.Decodepay(bolt11)
		if err != nil {
			return fmt.Errorf("%w: undecodable bolt11: %v", ErrInvalidReceipt, err)
		}
		if decoded.MSatoshi != wantMilliSats {
			return fmt.Errorf("%w: invoice amount mismatch", ErrInvalidReceipt)
		}
	}

	return nil
}
