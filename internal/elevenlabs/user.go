package elevenlabs

import (
	"context"
	"time"
)

// User is the account and its usage for the current billing period.
type User struct {
	FirstName      string    `json:"first_name"`
	CharacterCount int       `json:"character_count"`
	CharacterLimit int       `json:"character_limit"`
	NextReset      time.Time `json:"next_character_count_reset"`
	VoiceLimit     int       `json:"voice_limit"`
	VoiceSlotsUsed int       `json:"voice_slots_used"`
}

// CharactersRemaining returns how many characters can still be synthesized.
func (u User) CharactersRemaining() int {
	if n := u.CharacterLimit - u.CharacterCount; n > 0 {
		return n
	}
	return 0
}

// GetUser fetches the account.
func (c *Client) GetUser(ctx context.Context) (User, error) {
	var resp struct {
		FirstName    *string `json:"first_name"`
		Subscription struct {
			CharacterCount              int   `json:"character_count"`
			CharacterLimit              int   `json:"character_limit"`
			NextCharacterCountResetUnix int64 `json:"next_character_count_reset_unix"`
			VoiceLimit                  int   `json:"voice_limit"`
			VoiceSlotsUsed              int   `json:"voice_slots_used"`
		} `json:"subscription"`
	}
	if err := c.getJSON(ctx, "/v1/user", nil, &resp); err != nil {
		return User{}, err
	}

	u := User{
		FirstName:      "User",
		CharacterCount: resp.Subscription.CharacterCount,
		CharacterLimit: resp.Subscription.CharacterLimit,
		VoiceLimit:     resp.Subscription.VoiceLimit,
		VoiceSlotsUsed: resp.Subscription.VoiceSlotsUsed,
	}
	if resp.FirstName != nil && *resp.FirstName != "" {
		u.FirstName = *resp.FirstName
	}
	if ts := resp.Subscription.NextCharacterCountResetUnix; ts > 0 {
		u.NextReset = time.Unix(ts, 0)
	}
	return u, nil
}
