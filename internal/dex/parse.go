package dex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"marketScope/internal/model"
)

// ProgramLogPrefix marks program log lines that may carry an event.
const ProgramLogPrefix = "Program Log: "

// ParseError reports a tagged log line whose body does not match the wire
// format. It is distinct from "not an event": callers must skip the line and
// keep the subscription alive.
type ParseError struct {
	Line   string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed event log %q: %s", e.Line, e.Reason)
}

// ParseLog decodes one raw log line into a typed event. Lines without the
// program log prefix or with an unknown tag decode to (nil, nil). A tagged
// line with a malformed body returns a *ParseError.
func ParseLog(line string) (model.Event, error) {
	_, rest, found := strings.Cut(line, ProgramLogPrefix)
	if !found {
		return nil, nil
	}

	// The body is the segment between the first and second colon.
	parts := strings.Split(rest, ":")
	tag := parts[0]
	if len(parts) < 2 {
		switch tag {
		case model.CreateOfferTag, model.CancelOfferTag, model.MatchOffersTag:
			// A recognized tag with no body is malformed, not "not an event".
			return nil, &ParseError{Line: line, Reason: "missing event body"}
		}
		return nil, nil
	}
	body := parts[1]

	switch tag {
	case model.CreateOfferTag:
		fields, err := parseOfferFields(line, strings.Split(body, ","))
		if err != nil {
			return nil, err
		}
		return model.CreateOffer{OfferFields: fields}, nil
	case model.CancelOfferTag:
		fields, err := parseOfferFields(line, strings.Split(body, ","))
		if err != nil {
			return nil, err
		}
		return model.CancelOffer{OfferFields: fields}, nil
	case model.MatchOffersTag:
		return parseMatchOffers(line, body)
	default:
		return nil, nil
	}
}

// parseOfferFields decodes the 5-field csv shared by CREATE and CANCEL:
// offer address, offer mint, offering, accept mint, accept-at-least.
func parseOfferFields(line string, csv []string) (model.OfferFields, error) {
	if len(csv) != 5 {
		return model.OfferFields{}, &ParseError{Line: line, Reason: fmt.Sprintf("want 5 fields, got %d", len(csv))}
	}

	address, err := parseKey(line, csv[0])
	if err != nil {
		return model.OfferFields{}, err
	}
	offerMint, err := parseKey(line, csv[1])
	if err != nil {
		return model.OfferFields{}, err
	}
	offering, err := parseAmount(line, csv[2])
	if err != nil {
		return model.OfferFields{}, err
	}
	acceptMint, err := parseKey(line, csv[3])
	if err != nil {
		return model.OfferFields{}, err
	}
	acceptAtLeast, err := parseAmount(line, csv[4])
	if err != nil {
		return model.OfferFields{}, err
	}

	return model.OfferFields{
		Address:       address,
		OfferMint:     offerMint,
		Offering:      offering,
		AcceptMint:    acceptMint,
		AcceptAtLeast: acceptAtLeast,
	}, nil
}

// parseMatchOffers decodes the fixed 10-field MATCH csv: tokenA, amount
// a-to-b, tokenB, amount b-to-a, then (address, offering, acceptAtLeast) for
// each updated offer. The two offers mirror each other's mints.
func parseMatchOffers(line, body string) (model.Event, error) {
	csv := strings.Split(body, ",")
	if len(csv) != 10 {
		return nil, &ParseError{Line: line, Reason: fmt.Sprintf("want 10 fields, got %d", len(csv))}
	}

	updatedOfferA, err := parseOfferFields(line, []string{csv[4], csv[0], csv[5], csv[2], csv[6]})
	if err != nil {
		return nil, err
	}
	updatedOfferB, err := parseOfferFields(line, []string{csv[7], csv[2], csv[8], csv[0], csv[9]})
	if err != nil {
		return nil, err
	}
	tokenAAmount, err := parseAmount(line, csv[1])
	if err != nil {
		return nil, err
	}
	tokenBAmount, err := parseAmount(line, csv[3])
	if err != nil {
		return nil, err
	}

	return model.MatchOffers{
		UpdatedOfferA: updatedOfferA,
		UpdatedOfferB: updatedOfferB,
		Trade: model.Trade{
			TokenA:       updatedOfferA.OfferMint,
			TokenB:       updatedOfferB.OfferMint,
			TokenAAmount: tokenAAmount,
			TokenBAmount: tokenBAmount,
		},
	}, nil
}

func parseKey(line, input string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(input))
	if err != nil {
		return solana.PublicKey{}, &ParseError{Line: line, Reason: fmt.Sprintf("invalid address %q", input)}
	}
	return key, nil
}

func parseAmount(line, input string) (uint64, error) {
	amount, err := strconv.ParseUint(strings.TrimSpace(input), 10, 64)
	if err != nil {
		return 0, &ParseError{Line: line, Reason: fmt.Sprintf("invalid amount %q", input)}
	}
	return amount, nil
}
