package usecases

import (
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/practice-sem-2/chatlist-service/internal/models"
)

var validate = validator.New()

const idRules = "required,max=64,printascii"

func validateIDs(ids ...string) error {
	for _, id := range ids {
		if err := validate.Var(id, idRules); err != nil {
			return fmt.Errorf("%w: %q", ErrMalformedID, id)
		}
	}
	return nil
}

func validateMessage(msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is required", ErrMalformedMessage)
	}
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}
