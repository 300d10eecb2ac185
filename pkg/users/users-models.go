package users

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/silktrader/selah/pkg/ntime"
)

var nameRules = []validation.Rule{validation.Required, validation.Length(1, 50)}

type User struct {
	Id      string      `json:"id"`
	Name    string      `json:"name"`
	Email   string      `json:"email,omitempty"`
	Created ntime.NTime `json:"created"`
}

type UpdateNameData struct {
	Name string `json:"name"`
}

func (data UpdateNameData) Validate() error {
	data.Name = strings.TrimSpace(data.Name)
	return validation.ValidateStruct(&data, validation.Field(&data.Name, nameRules...))
}
