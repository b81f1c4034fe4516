package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strings"
	"time"

	"dripmail/models"
	"dripmail/store"
	"dripmail/utils"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// ReplyWorker polls each sender's IMAP inbox for replies to sequence
// emails. A matched reply halts the lead's sequence; everything else in
// the inbox is left untouched.
type ReplyWorker struct {
	Senders   *store.SenderStore
	History   *store.HistoryStore
	Contacts  *store.ContactStore
	Campaigns *store.CampaignStore
	Interval  time.Duration
	Logger    *log.Logger
}

func NewReplyWorker(senders *store.SenderStore, history *store.HistoryStore, contacts *store.ContactStore, campaigns *store.CampaignStore, interval time.Duration, logger *log.Logger) *ReplyWorker {
	return &ReplyWorker{
		Senders:   senders,
		History:   history,
		Contacts:  contacts,
		Campaigns: campaigns,
		Interval:  interval,
		Logger:    logger,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(15 * time.Second)

	rw.Logger.Printf("Reply worker started (interval %s)", rw.Interval)

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Reply worker shutting down...")
			return
		case <-ticker.C:
			rw.pollAll(ctx)
		}
	}
}

func (rw *ReplyWorker) pollAll(ctx context.Context) {
	senders, err := rw.Senders.ActiveWithIMAP(ctx)
	if err != nil {
		utils.LogError("reply_poll_failed", err, nil)
		return
	}

	for i := range senders {
		if ctx.Err() != nil {
			return
		}
		if err := rw.pollSender(ctx, &senders[i]); err != nil {
			rw.Logger.Printf("reply poll for sender %d failed: %v", senders[i].ID, err)
		}
	}
}

func (rw *ReplyWorker) pollSender(ctx context.Context, sender *models.Sender) error {
	imapClient, err := dialIMAP(sender)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(sender.IMAPUsername, sender.IMAPPassword); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := imapClient.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[HEADER]")}, messages)
	}()

	matched := new(imap.SeqSet)
	for msg := range messages {
		if rw.handleMessage(ctx, msg) {
			matched.AddNum(msg.SeqNum)
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %w", err)
	}

	// Flag matched replies as seen so the next poll skips them. Unmatched
	// mail keeps its unseen state for whoever actually reads the inbox.
	if !matched.Empty() {
		flags := []interface{}{imap.SeenFlag}
		if err := imapClient.Store(matched, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			rw.Logger.Printf("failed to flag processed replies: %v", err)
		}
	}
	return nil
}

// handleMessage reports whether the message was matched to a sequence
// email and recorded as a reply.
func (rw *ReplyWorker) handleMessage(ctx context.Context, msg *imap.Message) bool {
	for _, ref := range referencedMessageIDs(msg) {
		entry, err := rw.History.ByMessageID(ctx, ref)
		if err != nil || entry == nil {
			continue
		}

		contact, err := rw.Contacts.ByCampaignAndLead(ctx, entry.CampaignID, entry.LeadID)
		if err != nil || contact == nil {
			continue
		}
		if contact.Replied {
			return true
		}

		repliedAt := time.Now()
		if msg.Envelope != nil && !msg.Envelope.Date.IsZero() {
			repliedAt = msg.Envelope.Date
		}

		if err := rw.Contacts.MarkReplied(ctx, contact.ID, repliedAt); err != nil {
			utils.LogError("reply_mark_failed", err, map[string]interface{}{
				"contact_id": contact.ID,
				"message_id": ref,
			})
			return false
		}
		if err := rw.Campaigns.IncrementReplies(ctx, entry.CampaignID); err != nil {
			rw.Logger.Printf("reply counter for campaign %d failed: %v", entry.CampaignID, err)
		}

		utils.LogEvent("reply_detected", map[string]interface{}{
			"campaign_id": entry.CampaignID,
			"contact_id":  contact.ID,
			"message_id":  ref,
		})
		return true
	}
	return false
}

// referencedMessageIDs collects every message ID the reply points back at:
// In-Reply-To from the envelope plus the full References chain from the
// headers.
func referencedMessageIDs(msg *imap.Message) []string {
	var refs []string
	seen := make(map[string]struct{})
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		refs = append(refs, id)
	}

	if msg.Envelope != nil {
		add(msg.Envelope.InReplyTo)
	}

	// Body is keyed by the *BodySectionName the fetch used; GetBody
	// compares section values, a fresh key would never hit the map.
	section := imap.BodySectionName{BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier}}
	if literal := msg.GetBody(&section); literal != nil {
		if mr, err := mail.CreateReader(literal); err == nil {
			if raw := mr.Header.Get("References"); raw != "" {
				for _, id := range strings.Fields(raw) {
					add(id)
				}
			}
			if raw := mr.Header.Get("In-Reply-To"); raw != "" {
				add(raw)
			}
		}
	}
	return refs
}

func dialIMAP(sender *models.Sender) (*client.Client, error) {
	port := sender.IMAPPort
	if port == 0 {
		port = 993
	}
	addr := fmt.Sprintf("%s:%d", sender.IMAPHost, port)

	tlsConfig := &tls.Config{ServerName: sender.IMAPHost}
	switch strings.ToLower(sender.Encryption) {
	case models.EncryptionNone:
		return client.Dial(addr)
	case models.EncryptionStartTLS:
		c, err := client.Dial(addr)
		if err != nil {
			return nil, err
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Logout()
			return nil, err
		}
		return c, nil
	default:
		return client.DialTLS(addr, tlsConfig)
	}
}
