// Package bandetect classifies post-login banner signals as ban verdicts.
package bandetect

// PermanentBanMessage is the banner text the platform shows for a
// permanently suspended account. Only an exact match is a ban verdict.
const PermanentBanMessage = "This account has been permanently banned. Check your inbox for a message with more information."

// Verdict is the classification of a session signal.
type Verdict struct {
	Banned bool
	Reason string
}

// Detector maps session banner signals to ban verdicts.
type Detector struct {
	banMessages map[string]struct{}
}

// New creates a detector recognizing the given banner messages as definitive
// bans. With no messages it recognizes only PermanentBanMessage.
func New(messages ...string) Detector {
	set := make(map[string]struct{})
	if len(messages) == 0 {
		set[PermanentBanMessage] = struct{}{}
	}
	for _, msg := range messages {
		if msg != "" {
			set[msg] = struct{}{}
		}
	}
	return Detector{banMessages: set}
}

// Inspect classifies a banner signal. Non-ban banners exist, so any text
// other than a known ban message is clear, never banned.
func (d Detector) Inspect(message string, present bool) Verdict {
	if !present {
		return Verdict{}
	}
	if _, ok := d.banMessages[message]; ok {
		return Verdict{Banned: true, Reason: message}
	}
	return Verdict{}
}
