package form

import (
	"errors"
	"strings"

	"github.com/punchamoorthee/offerledger/internal/domain"
)

// Kind selects the flow a session runs.
type Kind int

const (
	KindCreateOffer Kind = iota + 1
	KindEditOffer
)

func (k Kind) String() string {
	switch k {
	case KindCreateOffer:
		return "create"
	case KindEditOffer:
		return "edit"
	}
	return "unknown"
}

// Field is the part of an offer an edit flow owns.
type Field int

const (
	FieldText Field = iota + 1
	FieldImage
	FieldFile
	FieldButton
)

func (f Field) String() string {
	switch f {
	case FieldText:
		return "text"
	case FieldImage:
		return "image"
	case FieldFile:
		return "file"
	case FieldButton:
		return "button"
	}
	return "unknown"
}

// ParseField maps a field name back to its Field.
func ParseField(s string) (Field, bool) {
	for _, f := range []Field{FieldText, FieldImage, FieldFile, FieldButton} {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

// Stage is the draft field a session is waiting for.
type Stage int

const (
	StageName Stage = iota + 1
	StageText
	StageImage
	StageFile
	StageButtonLabel
	StageButtonURL
)

func (s Stage) String() string {
	switch s {
	case StageName:
		return "name"
	case StageText:
		return "text"
	case StageImage:
		return "image"
	case StageFile:
		return "file"
	case StageButtonLabel:
		return "button_label"
	case StageButtonURL:
		return "button_url"
	}
	return "unknown"
}

// InputKind is what a stage accepts.
type InputKind int

const (
	InputText InputKind = iota + 1
	InputPhoto
	InputDocument
)

var (
	errNameEmpty = errors.New("name is empty")
	errNameTaken = errors.New("name is taken")
	errNameLong  = errors.New("name is too long")
)

// StageSpec declares one step of a flow.
type StageSpec struct {
	Stage     Stage
	Accepts   InputKind
	Skippable bool
	Prompt    string
	// Mismatch is sent when the input is of the wrong kind.
	Mismatch string
	// Validate runs on accepted input before it touches the draft.
	Validate func(value string) error
	// Assign writes the value into the draft; skipped stages assign "".
	Assign func(d *Draft, value string)
}

// accept extracts the stage value from in, reporting whether the kind matched.
func (s StageSpec) accept(in Input) (string, bool) {
	switch s.Accepts {
	case InputText:
		if strings.TrimSpace(in.Text) == "" {
			return "", false
		}
		return in.Text, true
	case InputPhoto:
		return in.PhotoRef, in.PhotoRef != ""
	case InputDocument:
		return in.DocumentRef, in.DocumentRef != ""
	}
	return "", false
}

// Draft is the partially collected offer.
type Draft struct {
	Name        string
	Body        string
	ImageRef    string
	FileRef     string
	ButtonLabel string
	ButtonURL   string
}

// Offer builds the offer a completed create flow commits.
func (d Draft) Offer() domain.Offer {
	return domain.Offer{
		Name:        d.Name,
		Body:        d.Body,
		ImageRef:    d.ImageRef,
		FileRef:     d.FileRef,
		ButtonLabel: d.ButtonLabel,
		ButtonURL:   d.ButtonURL,
	}
}

// apply writes the fields owned by an edit flow into o, leaving the rest untouched.
func (d Draft) apply(field Field, o *domain.Offer) {
	switch field {
	case FieldText:
		o.Body = d.Body
	case FieldImage:
		o.ImageRef = d.ImageRef
	case FieldFile:
		o.FileRef = d.FileRef
	case FieldButton:
		o.ButtonLabel = d.ButtonLabel
		o.ButtonURL = d.ButtonURL
	}
}

func assignName(d *Draft, v string)  { d.Name = strings.TrimSpace(v) }
func assignBody(d *Draft, v string)  { d.Body = v }
func assignImage(d *Draft, v string) { d.ImageRef = v }
func assignFile(d *Draft, v string)  { d.FileRef = v }
func assignLabel(d *Draft, v string) { d.ButtonLabel = strings.TrimSpace(v) }
func assignURL(d *Draft, v string)   { d.ButtonURL = strings.TrimSpace(v) }

const (
	promptName        = "Enter the name of the new offer:"
	promptNameEmpty   = "The name must not be empty. Enter the name of the new offer:"
	promptNameTaken   = "This name already exists. Enter another name:"
	promptNameLong    = "The name is too long. Enter a shorter name:"
	promptText        = "Now enter the offer text (HTML tags allowed):"
	promptImage       = "Text saved. Now send an image (optional) or /skip."
	promptFile        = "Now send a file, e.g. an APK (optional) or /skip."
	promptButtonLabel = "Now enter the button label (optional) or /skip.\nExample: 🎮 Game site"
	promptButtonURL   = "Now enter the button link (URL) (optional) or /skip.\nExample: https://example.com"

	promptEditText        = "Enter the new text (HTML tags allowed):"
	promptEditImage       = "Send the new image:"
	promptEditFile        = "Send the new file (APK):"
	promptEditButtonLabel = "Enter the new button label (optional, /skip):"
	promptEditButtonURL   = "Enter the button link (URL) (optional, /skip):"

	mismatchText     = "Please send the text as a message."
	mismatchImage    = "Please send an image or /skip."
	mismatchImageReq = "Please send an image."
	mismatchFile     = "Please send a file or /skip."
	mismatchFileReq  = "Please send a file."
	mismatchLabel    = "Please send the button label as text or /skip."
	mismatchURL      = "Please send the link as text or /skip."
)

// createFlow collects a whole offer. exists reports name collisions at the name stage.
func createFlow(exists func(string) bool) []StageSpec {
	return []StageSpec{
		{
			Stage: StageName, Accepts: InputText, Prompt: promptName, Mismatch: promptNameEmpty,
			Validate: func(v string) error {
				name := strings.TrimSpace(v)
				if name == "" {
					return errNameEmpty
				}
				if !domain.ValidName(name) {
					return errNameLong
				}
				if exists(name) {
					return errNameTaken
				}
				return nil
			},
			Assign: assignName,
		},
		{Stage: StageText, Accepts: InputText, Prompt: promptText, Mismatch: mismatchText, Assign: assignBody},
		{Stage: StageImage, Accepts: InputPhoto, Skippable: true, Prompt: promptImage, Mismatch: mismatchImage, Assign: assignImage},
		{Stage: StageFile, Accepts: InputDocument, Skippable: true, Prompt: promptFile, Mismatch: mismatchFile, Assign: assignFile},
		{Stage: StageButtonLabel, Accepts: InputText, Skippable: true, Prompt: promptButtonLabel, Mismatch: mismatchLabel, Assign: assignLabel},
		{Stage: StageButtonURL, Accepts: InputText, Skippable: true, Prompt: promptButtonURL, Mismatch: mismatchURL, Assign: assignURL},
	}
}

// editFlow collects the fields owned by one edit sub-flow.
func editFlow(field Field) []StageSpec {
	switch field {
	case FieldText:
		return []StageSpec{
			{Stage: StageText, Accepts: InputText, Prompt: promptEditText, Mismatch: mismatchText, Assign: assignBody},
		}
	case FieldImage:
		return []StageSpec{
			{Stage: StageImage, Accepts: InputPhoto, Prompt: promptEditImage, Mismatch: mismatchImageReq, Assign: assignImage},
		}
	case FieldFile:
		return []StageSpec{
			{Stage: StageFile, Accepts: InputDocument, Prompt: promptEditFile, Mismatch: mismatchFileReq, Assign: assignFile},
		}
	case FieldButton:
		return []StageSpec{
			{Stage: StageButtonLabel, Accepts: InputText, Skippable: true, Prompt: promptEditButtonLabel, Mismatch: mismatchLabel, Assign: assignLabel},
			{Stage: StageButtonURL, Accepts: InputText, Skippable: true, Prompt: promptEditButtonURL, Mismatch: mismatchURL, Assign: assignURL},
		}
	}
	return nil
}
