package bot

import (
	"strings"

	"github.com/punchamoorthee/offerledger/internal/form"
)

// Callback data is a ":"-separated path. Offer names go last so they may contain
// the separator themselves.
const (
	cbMainMenu  = "menu"
	cbOffers    = "offers"
	cbOffer     = "offer"
	cbBalance   = "balance"
	cbAdmin     = "adm"
	actPanel    = "panel"
	actAdd      = "add"
	actRemList  = "rmlist"
	actRemove   = "rm"
	actRemoveOK = "rmok"
	actEditList = "editlist"
	actEdit     = "edit"
	actField    = "field"
	actStats    = "stats"
	actClose    = "close"
)

// maxCallbackData is Telegram's limit on callback data. A keyboard with one
// longer button is rejected whole.
const maxCallbackData = 64

// callback is decoded callback data.
type callback struct {
	scope  string
	action string
	field  form.Field
	name   string
}

func offerData(name string) string { return cbOffer + ":" + name }

func adminData(action string) string { return cbAdmin + ":" + action }

func adminNameData(action, name string) string { return cbAdmin + ":" + action + ":" + name }

func fieldData(f form.Field, name string) string {
	return cbAdmin + ":" + actField + ":" + f.String() + ":" + name
}

func parseCallback(data string) (callback, bool) {
	scope, rest, _ := strings.Cut(data, ":")
	switch scope {
	case cbMainMenu, cbOffers, cbBalance:
		return callback{scope: scope}, rest == ""
	case cbOffer:
		return callback{scope: scope, name: rest}, rest != ""
	case cbAdmin:
	default:
		return callback{}, false
	}

	action, rest, _ := strings.Cut(rest, ":")
	cb := callback{scope: cbAdmin, action: action}
	switch action {
	case actPanel, actAdd, actRemList, actEditList, actStats, actClose:
		return cb, rest == ""
	case actRemove, actRemoveOK, actEdit:
		cb.name = rest
		return cb, rest != ""
	case actField:
		fieldName, name, ok := strings.Cut(rest, ":")
		if !ok || name == "" {
			return callback{}, false
		}
		f, ok := form.ParseField(fieldName)
		if !ok {
			return callback{}, false
		}
		cb.field, cb.name = f, name
		return cb, true
	}
	return callback{}, false
}
