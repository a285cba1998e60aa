package errprocess

import (
	"errors"
	"fmt"

	"presence_chat_service/pkg/logger"
)

// Reason stable code returned to the offending connection, never broadcast
type Reason string

const (
	// ReasonNotAuthenticated operation before auth:login completed
	ReasonNotAuthenticated Reason = "not_authenticated"
	// ReasonBadRequest malformed or incomplete payload
	ReasonBadRequest Reason = "bad_request"
	// ReasonUnknownChannel channel id does not resolve
	ReasonUnknownChannel Reason = "unknown_channel"
	// ReasonNotMember author is not a channel member
	ReasonNotMember Reason = "not_a_member"
	// ReasonNotAuthor edit/delete by someone else than the author
	ReasonNotAuthor Reason = "not_author"
	// ReasonUnknownMessage message id does not resolve in the channel
	ReasonUnknownMessage Reason = "unknown_message"
	// ReasonBadReply replyTo does not reference a message in the same channel
	ReasonBadReply Reason = "bad_reply"
)

// CodedError carries a Reason next to the human readable detail
type CodedError struct {
	Reason Reason
	Detail string
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// SetCode build a reason-coded error and log it
func SetCode(reason Reason, detail string) error {
	err := &CodedError{Reason: reason, Detail: detail}
	logger.Log.Error(err.Error())
	return err
}

// CodeOf extract the Reason from an error, ReasonBadRequest when uncoded
func CodeOf(err error) Reason {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Reason
	}
	return ReasonBadRequest
}
