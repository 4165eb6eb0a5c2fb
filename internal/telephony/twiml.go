package telephony

import (
	"encoding/xml"
	"fmt"
)

type twimlStream struct {
	URL string `xml:"url,attr"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Say     string        `xml:"Say,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
}

// StreamTwiML tells the provider to open a bidirectional media stream to the
// given WebSocket URL.
func StreamTwiML(wsURL string) ([]byte, error) {
	return marshalTwiML(twimlResponse{
		Connect: &twimlConnect{Stream: twimlStream{URL: wsURL}},
	})
}

// ApologyTwiML speaks a fallback message and hangs up. Used when the voice
// pipeline cannot be started: the caller must not be left in silence.
func ApologyTwiML(message string) ([]byte, error) {
	return marshalTwiML(twimlResponse{
		Say:    message,
		Hangup: &struct{}{},
	})
}

func marshalTwiML(resp twimlResponse) ([]byte, error) {
	body, err := xml.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("telephony: marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
