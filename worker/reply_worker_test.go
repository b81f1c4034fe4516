package worker

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/emersion/go-imap"
)

func headerMessage(envelopeInReplyTo, rawHeader string) *imap.Message {
	msg := &imap.Message{
		Envelope: &imap.Envelope{InReplyTo: envelopeInReplyTo},
	}
	if rawHeader != "" {
		// The fetch stores the literal under its own key pointer; lookups
		// must match by section value, never by key identity.
		key := &imap.BodySectionName{BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier}}
		msg.Body = map[*imap.BodySectionName]imap.Literal{
			key: bytes.NewBufferString(rawHeader),
		}
	}
	return msg
}

func TestReferencedMessageIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		inReplyTo string
		rawHeader string
		want      []string
	}{
		{
			name:      "envelope only",
			inReplyTo: "<m1@acme.test>",
			want:      []string{"<m1@acme.test>"},
		},
		{
			name:      "references chain from headers",
			rawHeader: "References: <m1@acme.test> <m2@acme.test>\r\nContent-Type: text/plain\r\n\r\n",
			want:      []string{"<m1@acme.test>", "<m2@acme.test>"},
		},
		{
			name:      "envelope and headers deduplicated",
			inReplyTo: "<m2@acme.test>",
			rawHeader: "References: <m1@acme.test> <m2@acme.test>\r\nIn-Reply-To: <m2@acme.test>\r\nContent-Type: text/plain\r\n\r\n",
			want:      []string{"<m2@acme.test>", "<m1@acme.test>"},
		},
		{
			name: "no identifiers at all",
			want: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := referencedMessageIDs(headerMessage(tt.inReplyTo, tt.rawHeader))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("referencedMessageIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}
