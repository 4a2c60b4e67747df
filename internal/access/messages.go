package access

import (
	"errors"

	"github.com/ppiankov/aorta/internal/models"
)

// User-visible messages. Unknown identity and wrong secret share one
// message so that identities cannot be enumerated.
const (
	MsgNoIdentity    = "You did not give your username."
	MsgNoSecret      = "You did not give your authorization code."
	MsgBadCredential = "Your username or authorization code is invalid."
	MsgMissingRole   = "You are not authorized to do that."
	MsgInternal      = "Something went wrong on the server. Please try again later."
)

var messages = []struct {
	err error
	msg string
}{
	{models.ErrNoIdentity, MsgNoIdentity},
	{models.ErrNoSecret, MsgNoSecret},
	{models.ErrBadCredential, MsgBadCredential},
	{models.ErrMissingRole, MsgMissingRole},
	{models.ErrInvalidID, "The identifier is invalid. Use only lowercase letters and digits."},
	{models.ErrDuplicateID, "A resource with that identifier already exists."},
	{models.ErrMissingField, "A required field is missing."},
	{models.ErrMalformedBody, "The submitted data could not be understood."},
	{models.ErrMissingTester, "The report does not name its tester."},
	{models.ErrTesterMismatch, "The report's tester is not you."},
	{models.ErrMissingID, "The identifier is missing."},
	{models.ErrUnknownResourceType, "There is no such kind of resource."},
	{models.ErrUnknownOrder, "There is no such order."},
	{models.ErrUnknownTester, "There is no such tester."},
	{models.ErrTesterLacksRole, "That user is not a tester."},
	{models.ErrUnknownDigester, "No digester exists for the report's script."},
	{models.ErrMissingPlaceholderValue, "The digest template needs a value the digester did not supply."},
	{models.ErrNotFound, "There is no such resource."},
}

// Message returns the user-visible message for err. Infrastructure errors
// get a generic message; their detail is for server logs only.
func Message(err error) string {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return MsgInternal
}
