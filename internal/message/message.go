// Package message defines the wire types exchanged between tabs and the
// background process. All ledger and remote-API work is routed through
// the background process as a Request; the background fans TabEvents
// back out to every registered tab. Keeping both unions closed means a
// handler switch that misses a case is a visible bug, not silent data.
package message

import (
	"time"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/session"
)

// RequestType identifies the action a tab is asking the background
// process to perform.
type RequestType string

const (
	TypeRedeemExistingTimeGrant   RequestType = "redeemExistingTimeGrant"   // fold the accrued grant into the next review time
	TypeGrantTime                 RequestType = "grantTime"                 // add earned time to the pending grant
	TypeUnredeemIfNeeded          RequestType = "unredeemIfNeeded"          // pause the countdown while an overlay is open
	TypeBroadcast                 RequestType = "broadcast"                 // fan an event out to every tab
	TypeNextFlashcard             RequestType = "nextFlashcard"             // fetch and cache the next due card
	TypeReviewFlashcard           RequestType = "reviewFlashcard"           // submit a grade for a card
	TypeEditFlashcard             RequestType = "editFlashcard"             // update a card's content
	TypeDeleteFlashcard           RequestType = "deleteFlashcard"           // delete a card
	TypeListFlashcards            RequestType = "listFlashcards"            // list every card in the active deck
	TypeGetUserData               RequestType = "getUserData"               // fetch the user's configuration
	TypeSetUserData               RequestType = "setUserData"               // write the user's configuration
	TypeLogin                     RequestType = "login"                     // validate credentials and mark the session live
	TypeLogout                    RequestType = "logout"                    // end the session and wipe local state
	TypeScreenshotCurrentTab      RequestType = "screenshotCurrentTab"      // capture the active tab, sender must be it
	TypeCreateOverlayInCurrentTab RequestType = "createOverlayInCurrentTab" // open an overlay in the active tab
)

// Request is one message from a tab (or the alarm scheduler) to the
// background process. Type selects the action; the payload fields that
// apply to it are documented per constructor.
type Request struct {
	Type RequestType

	// Grant is the time to add (TypeGrantTime).
	Grant time.Duration

	// Event is the event to fan out (TypeBroadcast).
	Event *TabEvent

	// Deck scopes card fetches (TypeNextFlashcard, TypeListFlashcards);
	// empty means the user's configured deck.
	Deck string

	// CardID names the card being acted on (review, delete).
	CardID string

	// Grade is the numeric review grade, 1-4 (TypeReviewFlashcard).
	Grade int

	// Card carries edited content (TypeEditFlashcard).
	Card *api.Flashcard

	// UserData carries configuration to store (TypeSetUserData).
	UserData *api.UserData

	// Screen selects the overlay's initial screen (TypeCreateOverlayInCurrentTab).
	Screen session.Screen
}

// TabEventType identifies an event the background process pushes to tabs.
type TabEventType string

const (
	EventShowFlashcardAlarm            TabEventType = "showFlashcardAlarm"            // the review timer fired; re-evaluate whether to interrupt
	EventCloseOverlayAllTabs           TabEventType = "closeOverlayAllTabs"           // tear down every overlay unconditionally
	EventCloseOverlayIfFlashcardScreen TabEventType = "closeOverlayIfFlashcardScreen" // tear down overlays still in the review flow
	EventCreateOverlay                 TabEventType = "createOverlay"                 // open an overlay at Screen
)

// TabEvent is one broadcast event. Delivery is best effort per tab: a
// tab that fails to handle an event never blocks the others.
type TabEvent struct {
	Type TabEventType

	// Screen selects the overlay's initial screen (EventCreateOverlay).
	Screen session.Screen
}

// Response is the background process's answer to a Request.
type Response struct {
	Result  string // "success" or "error"
	Message string // human-readable error detail, empty on success
	Data    any    // action-specific payload, may be nil
}

// Success builds a success response carrying data (which may be nil).
func Success(data any) Response {
	return Response{Result: "success", Data: data}
}

// Error builds an error response from err.
func Error(err error) Response {
	return Response{Result: "error", Message: err.Error()}
}

// OK reports whether the response indicates success.
func (r Response) OK() bool {
	return r.Result == "success"
}

// RedeemResult is the Data payload of a successful redeem.
type RedeemResult struct {
	NextFlashcardTime time.Time
	Granted           time.Duration
}

// NewRedeemRequest asks the background to redeem the accrued time grant.
func NewRedeemRequest() Request {
	return Request{Type: TypeRedeemExistingTimeGrant}
}

// NewGrantTimeRequest asks the background to add grant to the pending total.
func NewGrantTimeRequest(grant time.Duration) Request {
	return Request{Type: TypeGrantTime, Grant: grant}
}

// NewUnredeemRequest asks the background to pause the countdown.
func NewUnredeemRequest() Request {
	return Request{Type: TypeUnredeemIfNeeded}
}

// NewBroadcastRequest asks the background to fan event out to every tab.
func NewBroadcastRequest(event TabEvent) Request {
	return Request{Type: TypeBroadcast, Event: &event}
}

// NewNextFlashcardRequest asks for the next due card in deck.
func NewNextFlashcardRequest(deck string) Request {
	return Request{Type: TypeNextFlashcard, Deck: deck}
}

// NewReviewRequest submits grade for cardID.
func NewReviewRequest(cardID string, grade int) Request {
	return Request{Type: TypeReviewFlashcard, CardID: cardID, Grade: grade}
}

// NewEditRequest updates card's content remotely.
func NewEditRequest(card *api.Flashcard) Request {
	return Request{Type: TypeEditFlashcard, Card: card}
}

// NewDeleteRequest deletes cardID remotely.
func NewDeleteRequest(cardID string) Request {
	return Request{Type: TypeDeleteFlashcard, CardID: cardID}
}

// NewListFlashcardsRequest lists every card in deck.
func NewListFlashcardsRequest(deck string) Request {
	return Request{Type: TypeListFlashcards, Deck: deck}
}

// NewGetUserDataRequest fetches the user's configuration.
func NewGetUserDataRequest() Request {
	return Request{Type: TypeGetUserData}
}

// NewSetUserDataRequest stores the user's configuration.
func NewSetUserDataRequest(data *api.UserData) Request {
	return Request{Type: TypeSetUserData, UserData: data}
}

// NewLoginRequest validates the session and marks the user logged in.
func NewLoginRequest() Request {
	return Request{Type: TypeLogin}
}

// NewLogoutRequest ends the session and wipes local state.
func NewLogoutRequest() Request {
	return Request{Type: TypeLogout}
}

// NewScreenshotRequest captures the active tab. The background rejects
// it unless the sender is the active tab.
func NewScreenshotRequest() Request {
	return Request{Type: TypeScreenshotCurrentTab}
}

// NewCreateOverlayRequest opens an overlay at screen in the active tab.
func NewCreateOverlayRequest(screen session.Screen) Request {
	return Request{Type: TypeCreateOverlayInCurrentTab, Screen: screen}
}
