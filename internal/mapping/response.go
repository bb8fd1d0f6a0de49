package mapping

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExtractBid reads the numeric bid from a buyer's PING response body using
// the buyer's response mapping. Numeric strings are accepted; non-finite or
// negative values are rejected.
func ExtractBid(rm ResponseMapping, body []byte) (float64, error) {
	if rm.BidField == "" {
		return 0, fmt.Errorf("response mapping has no bid field")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("unparseable ping response: %w", err)
	}

	raw, ok := Resolve(decoded, rm.BidField)
	if !ok {
		return 0, fmt.Errorf("bid field %q not present in response", rm.BidField)
	}

	bid, err := asNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("bid field %q: %w", rm.BidField, err)
	}
	if math.IsNaN(bid) || math.IsInf(bid, 0) || bid < 0 {
		return 0, fmt.Errorf("bid field %q: invalid bid %v", rm.BidField, bid)
	}

	return bid, nil
}

// ExtractDelivery reads the accept/reject signal and optional error detail
// from a buyer's POST response body
func ExtractDelivery(rm ResponseMapping, body []byte) (accepted bool, detail string, err error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return false, "", fmt.Errorf("unparseable post response: %w", err)
	}

	if rm.ErrorField != "" {
		if raw, ok := Resolve(decoded, rm.ErrorField); ok {
			detail = asString(raw)
		}
	}

	if rm.StatusField == "" {
		// No status mapping configured: a parseable 2xx body counts as
		// accepted, the transport layer already rejected HTTP errors
		return true, detail, nil
	}

	raw, ok := Resolve(decoded, rm.StatusField)
	if !ok {
		return false, detail, fmt.Errorf("status field %q not present in response", rm.StatusField)
	}

	status := asString(raw)
	accepts := rm.AcceptValues
	if len(accepts) == 0 {
		accepts = []string{"accepted", "success", "ok", "true", "1"}
	}
	for _, v := range accepts {
		if strings.EqualFold(status, v) {
			return true, detail, nil
		}
	}

	return false, detail, nil
}

// asNumber coerces a JSON value to float64
func asNumber(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", v)
		}
		return n, nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("not numeric: %T", value)
	}
}
