package conv

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tisuway/walletbot/internal/validate"
	"github.com/tisuway/walletbot/internal/wallet"
)

// Registration handlers. Each step validates the raw input, persists the
// field together with the advanced state mirror in one update, and emits
// the next step's prompt. Rejected input re-prompts with a format hint
// and leaves state unchanged.

func (e *Engine) saveField(ctx context.Context, sess *Session, fields wallet.Fields, next State, prompt string) (string, error) {
	fields["current_state"] = string(next)
	if err := e.profiles.Update(ctx, sess.Sender, fields); err != nil {
		return "", err
	}
	e.sessions.SetState(sess.Sender, next)
	return prompt, nil
}

func (e *Engine) handleFirstName(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	if !validate.Name(input) {
		return "Please enter a valid first name (2-50 letters, hyphens and apostrophes allowed).", nil
	}
	return e.saveField(ctx, sess, wallet.Fields{"first_name": input}, StateSurname,
		"Please enter your Surname")
}

func (e *Engine) handleSurname(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	if !validate.Name(input) {
		return "Please enter a valid surname (2-50 letters, hyphens and apostrophes allowed).", nil
	}
	return e.saveField(ctx, sess, wallet.Fields{"surname": input}, StateNationality,
		"Please enter your Nationality")
}

func (e *Engine) handleNationality(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	if !validate.Name(input) {
		return "Please enter a valid nationality.", nil
	}
	return e.saveField(ctx, sess, wallet.Fields{"nationality": input}, StateAddress,
		"Please enter your Full Residential Address")
}

func (e *Engine) handleAddress(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	if !validate.Address(input) {
		return "Please enter a valid residential address including a street number, e.g. 123 Smith Street, Avondale, Harare.", nil
	}
	return e.saveField(ctx, sess, wallet.Fields{"address": input}, StateIDType,
		selectionPrompt("Select ID Type:", idTypeOptions))
}

func (e *Engine) handleIDType(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	idx, ok := parseSelection(input, len(idTypeOptions))
	if !ok {
		return "Invalid selection. Please choose a number from the list.", nil
	}
	idType := idTypeOptions[idx]
	return e.saveField(ctx, sess, wallet.Fields{"id_type": idType}, StateIDNumber,
		fmt.Sprintf("Please enter your %s number", idType))
}

func (e *Engine) handleIDNumber(ctx context.Context, sess *Session, prof *wallet.Profile, input string) (string, error) {
	ok, hint := validateIDNumber(prof.IDType, input)
	if !ok {
		return hint, nil
	}
	return e.saveField(ctx, sess, wallet.Fields{"id_number": input}, StateVerification,
		selectionPrompt("Select Verification Method:", verificationOptions))
}

func (e *Engine) handleVerification(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	idx, ok := parseSelection(input, len(verificationOptions))
	if !ok {
		return "Invalid selection. Please choose a number from the list.", nil
	}
	return e.saveField(ctx, sess, wallet.Fields{"verification_method": verificationOptions[idx]}, StatePasscode,
		"Please create a 6-digit passcode for your wallet")
}

func (e *Engine) handlePasscode(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	if !validate.Passcode(input) {
		return "Please enter a valid 6-digit passcode", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passcode: %w", err)
	}
	reply, err := e.saveField(ctx, sess, wallet.Fields{
		"passcode_hash":         string(hash),
		"registration_complete": true,
	}, StateMainMenu, registrationCompleteText())
	if err != nil {
		return "", err
	}
	return reply, nil
}

func registrationCompleteText() string {
	return `Registration Complete!

Navigation commands:
- Type 'menu' anytime to return to the main menu
- Type 'back' to go back one step in the menu

` + mainMenu()
}

// validateIDNumber applies the validator matching the chosen ID type and
// returns a format hint on rejection.
func validateIDNumber(idType, input string) (bool, string) {
	switch idType {
	case "National ID":
		if validate.NationalID(input) {
			return true, ""
		}
		return false, "Invalid National ID. Format: 63-123456A42"
	case "Passport":
		if validate.Passport(input) {
			return true, ""
		}
		return false, "Invalid passport number. Format: AB123456"
	case "Drivers License":
		if validate.DriversLicense(input) {
			return true, ""
		}
		return false, "Invalid drivers license number. It must be exactly 12 digits."
	default:
		// ID type missing means the flow is out of order; treat the
		// national ID format as the safe default hint.
		return false, "Invalid ID number."
	}
}

func selectionPrompt(title string, options []string) string {
	var b strings.Builder
	b.WriteString(title)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	return b.String()
}

// parseSelection parses a 1-based numeric menu choice.
func parseSelection(input string, n int) (int, bool) {
	sel, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || sel < 1 || sel > n {
		return 0, false
	}
	return sel - 1, true
}
