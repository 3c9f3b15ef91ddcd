package sparql

import (
	"encoding/json"
	"io"

	"github.com/teranos/valstream/errors"
)

// Head is the "head" member of a SPARQL JSON results document.
type Head struct {
	Vars []string `json:"vars"`
	Link []string `json:"link,omitempty"`
}

// Results is a fully materialized SPARQL JSON results document.
type Results struct {
	Head    Head  `json:"head"`
	Boolean *bool `json:"boolean,omitempty"`
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// errStop ends decoding early once a row limit is reached.
var errStop = errors.New("stop decoding")

// DecodeResults streams the bindings of a SPARQL JSON results document from r,
// calling fn once per solution in document order. Solutions are never
// buffered, so arbitrarily large result sets decode in constant memory.
func DecodeResults(r io.Reader, fn func(Binding) error) (Head, *bool, error) {
	var (
		head    Head
		boolean *bool
	)
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return head, nil, err
	}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return head, nil, err
		}
		switch key {
		case "head":
			if err := dec.Decode(&head); err != nil {
				return head, nil, errors.Wrap(err, "failed to decode results head")
			}
		case "boolean":
			var b bool
			if err := dec.Decode(&b); err != nil {
				return head, nil, errors.Wrap(err, "failed to decode boolean result")
			}
			boolean = &b
		case "results":
			if err := decodeResultsObject(dec, fn); err != nil {
				return head, boolean, err
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return head, nil, errors.Wrapf(err, "failed to skip member %q", key)
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return head, boolean, err
	}
	return head, boolean, nil
}

func decodeResultsObject(dec *json.Decoder, fn func(Binding) error) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return err
		}
		if key != "bindings" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return errors.Wrapf(err, "failed to skip results member %q", key)
			}
			continue
		}

		if err := expectDelim(dec, '['); err != nil {
			return err
		}
		for dec.More() {
			var b Binding
			if err := dec.Decode(&b); err != nil {
				return errors.Wrap(err, "failed to decode binding")
			}
			if err := fn(b); err != nil {
				return err
			}
		}
		if err := expectDelim(dec, ']'); err != nil {
			return err
		}
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrapf(err, "invalid results document, expected %q", want)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Newf("invalid results document: expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", errors.Wrap(err, "invalid results document")
	}
	key, ok := tok.(string)
	if !ok {
		return "", errors.Newf("invalid results document: expected member name, got %v", tok)
	}
	return key, nil
}
