package dialogue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
	"github.com/tanpawarit/movebot/agent/validate"
)

const (
	replyExtractFailed   = "Sorry, I couldn't process that right now. Could you please try again?"
	replyPricingFailed   = "I'm having trouble calculating the cost. Please verify locations or try again."
	replyApology         = "Sorry, something went wrong on my side. Please try again in a moment."
	replyDeclineEstimate = "No worries! Let me know if you have any other questions."
	replyNoDetails       = "No move details found. Please provide origin, destination, move size, and move date first."
	replyUnknownServices = "Sorry, please respond again with valid additional services (e.g., packing, storage) or 'no'."
	replyAskEmail        = "Please share your email address for updates on your move."
	replyBadEmail        = "Invalid email format. Please provide a valid email address."
	replyAskName         = "Great! Now please share your name."
	replyAskContact      = "Thank you! Now please share your 10-digit contact number."
	replyBadContact      = "Invalid contact number format. Please provide a valid 10-digit contact number."
	replyFutureDate      = "Please provide a valid future date."
)

const notProvided = "Not Provided"

func title(s string) string {
	if strings.TrimSpace(s) == "" {
		return notProvided
	}
	return cases.Title(language.English).String(s)
}

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', -1, 64)
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return notProvided
	}
	return s
}

func missingReply(missing []string) string {
	return "I still need your " + strings.Join(missing, ", ") + " to provide an estimate."
}

func dateErrorReply(err error) string {
	msg := "Invalid date format. Please provide valid date."
	if errors.Is(err, validate.ErrPastDate) {
		msg = "The date you provided is in the past. Please provide a future date."
	}
	return msg + " " + replyFutureDate
}

func estimateReply(d *statex.MoveDetail, est contractx.Estimate, p Policy) string {
	head := fmt.Sprintf("The estimated cost for moving from %s to %s (%s, date: %s) is between %s and %s.",
		title(d.Origin), title(d.Destination), title(d.MoveSize), d.MoveDate, money(est.Min), money(est.Max))
	if p.Spoken {
		return head + " Would you like to proceed with booking this move? Please say Yes or No."
	}
	return head + " 🏠📦💰\nWould you like to proceed with booking this move? (Reply Yes/No) 👍👎"
}

func estimatePrompt(p Policy) string {
	if p.Spoken {
		return "Please say Yes or No. Would you like to proceed with booking?"
	}
	return "Please respond with Yes or No. Would you like to proceed with booking?"
}

func servicesOffer(costs *contractx.ServiceCosts, p Policy) string {
	switch {
	case costs == nil && p.Spoken:
		return "Would you like any additional services such as packing or storage? Please specify, or say no."
	case costs == nil:
		return "Would you like any additional services such as packing or storage? If yes, please specify them (e.g., packing, storage). If not, type 'no'."
	case p.Spoken:
		return fmt.Sprintf("Would you like any additional services such as packing (cost: %s) or storage (cost: %s)? Please specify if you want packing, storage, or both. If not, say no.",
			money(costs.Packing), money(costs.Storage))
	default:
		return fmt.Sprintf("Would you like any additional services such as packing (cost: %s) or storage (cost: %s)? If yes, please specify them (e.g., 'only packing', 'yes storage', or 'packing, storage'). If not, type 'no'.",
			money(costs.Packing), money(costs.Storage))
	}
}

func servicesAck(services []string, declined bool, p Policy) string {
	if !p.Spoken {
		return replyAskEmail
	}
	switch {
	case len(services) > 0:
		return "Noted. You chose additional services: " + strings.Join(services, ", ") + ". " + replyAskEmail
	case declined:
		return "Noted, no additional services. " + replyAskEmail
	default:
		return "I didn't catch any specific additional service. I'll assume you don't want any additional services. " + replyAskEmail
	}
}

func emailErrorReply(err error) string {
	var typo *validate.DomainTypoError
	if errors.As(err, &typo) {
		return replyBadEmail + " Did you mean " + typo.Suggestion + "?"
	}
	return replyBadEmail
}

func namePrompt(p Policy) string {
	if p.Spoken {
		return "I didn't catch your name. Please provide your name."
	}
	return "Please provide your name."
}

func costRange(s *statex.Session) string {
	if s.EstimatedCostMin == nil || s.EstimatedCostMax == nil {
		return notProvided
	}
	return money(*s.EstimatedCostMin) + " - " + money(*s.EstimatedCostMax)
}

func summaryReply(s *statex.Session, d *statex.MoveDetail, p Policy) string {
	services := "None"
	if len(d.AdditionalServices) > 0 {
		services = strings.Join(d.AdditionalServices, ", ")
	}

	if p.Spoken {
		return fmt.Sprintf("Here are your move details: From %s, To %s, Move Size %s, Move Date %s, Additional Services %s, Email %s, Estimated Cost %s, Name %s, Contact Number %s. Do you confirm this booking? Please say Yes or No.",
			title(d.Origin), title(d.Destination), title(d.MoveSize), orNotProvided(d.MoveDate), services,
			orNotProvided(d.Email), costRange(s), orNotProvided(s.Username), orNotProvided(s.ContactNo))
	}

	var b strings.Builder
	b.WriteString("Here are your move details:\n")
	fmt.Fprintf(&b, "📍 From: %s\n", title(d.Origin))
	fmt.Fprintf(&b, "📍 To: %s\n", title(d.Destination))
	fmt.Fprintf(&b, "🏠 Move Size: %s\n", title(d.MoveSize))
	fmt.Fprintf(&b, "📅 Move Date: %s\n", orNotProvided(d.MoveDate))
	fmt.Fprintf(&b, "🔧 Additional Services: %s\n", services)
	fmt.Fprintf(&b, "📧 Email: %s\n", orNotProvided(d.Email))
	fmt.Fprintf(&b, "💰 Estimated Cost: %s\n", costRange(s))
	fmt.Fprintf(&b, "👤 Name: %s\n", orNotProvided(s.Username))
	fmt.Fprintf(&b, "📞 Contact No: %s\n\n", orNotProvided(s.ContactNo))
	b.WriteString("Do you confirm this booking? (Yes/No) 👍👎")
	return b.String()
}

func confirmedReply(p Policy) string {
	if p.Spoken {
		return "Your move has been successfully confirmed! Our team will be in touch soon."
	}
	return "Your move has been successfully confirmed! 🎉 Our team will be in touch soon."
}

func modifyPrompt(p Policy) string {
	if p.Spoken {
		return "I understand. Which details would you like to change? For example, a new date or different origin/destination?"
	}
	return "I understand. Which details would you like to change? (e.g., new date, different origin/destination, etc.)"
}

func confirmPrompt(p Policy) string {
	if p.Spoken {
		return "Please say Yes or No. Do you confirm this booking?"
	}
	return "Please respond with Yes or No. Do you confirm this booking?"
}
