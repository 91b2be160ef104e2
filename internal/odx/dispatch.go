package odx

import (
	"bytes"
	"strings"
)

// Service groups the request shape and the response shapes of one
// diagnostic service.
type Service struct {
	ShortName         string
	Request           *Structure
	PositiveResponses []*Structure
	NegativeResponses []*Structure
}

// Message is the result of dispatching a coded buffer: the bytes, the
// candidate structure that explained them, and the decoded values.
type Message struct {
	Coded     []byte
	Service   *Service
	Structure *Structure
	Values    ParameterValues
	Warnings  []Warning
}

// codedConstPrefix is the longest leading run of constant bytes of a
// structure: coded-const and physical-const parameters, plus
// matching-request parameters resolved against the request's own
// prefix. It is used to pre-filter dispatch candidates cheaply.
func (s *Structure) codedConstPrefix(requestPrefix []byte) []byte {
	st := newEncodeState(Permissive, requestPrefix)
	for _, p := range s.Params {
		switch p.(type) {
		case *CodedConstParameter, *PhysicalConstParameter, *MatchingRequestParameter:
			if err := encodeParameter(p, st, nil); err != nil {
				return st.Coded
			}
		default:
			return st.Coded
		}
	}
	return st.Coded
}

// Structures lists the request and all response shapes of the service.
func (s *Service) Structures() []*Structure {
	out := make([]*Structure, 0, 1+len(s.PositiveResponses)+len(s.NegativeResponses))
	if s.Request != nil {
		out = append(out, s.Request)
	}
	out = append(out, s.PositiveResponses...)
	out = append(out, s.NegativeResponses...)
	return out
}

// ResponseByName returns the positive or negative response structure
// with the given short name, or nil.
func (s *Service) ResponseByName(name string) *Structure {
	for _, r := range s.PositiveResponses {
		if r.ShortName == name {
			return r
		}
	}
	for _, r := range s.NegativeResponses {
		if r.ShortName == name {
			return r
		}
	}
	return nil
}

// decodeCandidates tries every structure of the service against the
// message. Candidates whose constant prefix does not match are skipped
// without decoding; candidates that reject themselves (DecodeMismatch)
// are skipped silently; any other decode failure is fatal.
func (s *Service) decodeCandidates(message []byte, mode Mode) ([]*Message, error) {
	var requestPrefix []byte
	if s.Request != nil {
		requestPrefix = s.Request.codedConstPrefix(nil)
	}

	var matches []*Message
	for _, c := range s.Structures() {
		prefix := c.codedConstPrefix(requestPrefix)
		if len(message) < len(prefix) || !bytes.Equal(message[:len(prefix)], prefix) {
			continue
		}
		values, _, warnings, err := c.Decode(message, mode)
		if err != nil {
			if IsDecodeMismatch(err) {
				continue
			}
			return nil, err
		}
		matches = append(matches, &Message{
			Coded:     message,
			Service:   s,
			Structure: c,
			Values:    values,
			Warnings:  warnings,
		})
	}
	return matches, nil
}

// DecodeMessage picks the unique structure of the service that explains
// the message. Zero surviving candidates and more than one are both
// decode errors; ambiguity is never resolved by priority order.
func (s *Service) DecodeMessage(message []byte, mode Mode) (*Message, error) {
	matches, err := s.decodeCandidates(message, mode)
	if err != nil {
		return nil, err
	}
	return uniqueMatch(matches, message)
}

// DecodeAny dispatches the message across several services and applies
// the exactly-one-match rule over the union of all their candidates.
func DecodeAny(services []*Service, message []byte, mode Mode) (*Message, error) {
	var matches []*Message
	for _, svc := range services {
		m, err := svc.decodeCandidates(message, mode)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m...)
	}
	return uniqueMatch(matches, message)
}

func uniqueMatch(matches []*Message, message []byte) (*Message, error) {
	switch len(matches) {
	case 0:
		return nil, decodeErrorf("no candidate structure explains message % X", message)
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Structure.ShortName
	}
	return nil, decodeErrorf("message % X is ambiguous between candidates %s",
		message, strings.Join(names, ", "))
}

// EncodeRequest encodes the service request, checking up front that
// every required parameter has a value.
func (s *Service) EncodeRequest(values ParameterValues, mode Mode) ([]byte, []Warning, error) {
	if s.Request == nil {
		return nil, nil, encodeErrorf("service %q has no request", s.ShortName)
	}
	if err := checkRequired(s.Request, values); err != nil {
		return nil, nil, err
	}
	return s.Request.Encode(values, nil, mode)
}

// EncodeResponse encodes one of the service's response structures
// against the triggering request.
func (s *Service) EncodeResponse(resp *Structure, values ParameterValues, triggeringRequest []byte, mode Mode) ([]byte, []Warning, error) {
	if err := checkRequired(resp, values); err != nil {
		return nil, nil, err
	}
	return resp.Encode(values, triggeringRequest, mode)
}

func checkRequired(s *Structure, values ParameterValues) error {
	var missing []string
	for _, name := range s.RequiredParameters() {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return encodeErrorf("structure %q is missing values for required parameters: %s",
			s.ShortName, strings.Join(missing, ", "))
	}
	return nil
}
