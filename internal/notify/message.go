package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/temirov/foldmerge/internal/quarantine"
)

const (
	subjectTemplateConstant          = "[%s] %s: %s"
	defaultApplicationNameConstant   = "foldmerge"
	timestampLineTemplateConstant    = "Timestamp: %s"
	repositoryLineTemplateConstant   = "Repository: %s"
	branchLineTemplateConstant       = "Branch: %s"
	statusLineTemplateConstant       = "Status: %s"
	reasonLineTemplateConstant       = "Reason: %s"
	errorKindLineTemplateConstant    = "Error kind: %s"
	destinationLineTemplateConstant  = "Location: %s"
	removedBranchesLineTemplate      = "Removed branches: %s"
	removedBranchesSeparator         = ", "
	dispositionLineTemplateConstant  = "Disposition: %s (%s bucket)"
	quarantinePathLineTemplate       = "  %s (archived: %t)"
	quarantinedPathsHeaderConstant   = "Quarantined paths:"
	successStatusDescriptionConstant = "priority content merged, pushed, and verified"
	failureStatusDescriptionConstant = "run stopped before completion"
	quarantineStatusDescription      = "unexpected local changes were quarantined"
	archiveDestinationHeaderConstant = "Archive: %s"
	timestampLayoutConstant          = time.RFC3339
)

// Status is the notification category carried in the subject.
type Status string

// Notification categories.
const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusQuarantine Status = "quarantine"
)

// Message is a composed notification. It is built right before dispatch and never stored.
type Message struct {
	Subject    string
	Body       []string
	Recipients []string
}

// Text joins the body lines.
func (message Message) Text() string {
	return strings.Join(message.Body, "\n")
}

// RunDetails identifies the run a notification is about.
type RunDetails struct {
	Repository      string
	Identity        string
	Branch          string
	Destination     string
	RemovedBranches []string
}

// Composer builds notification messages.
type Composer struct {
	applicationName string
	recipients      []string
	clock           func() time.Time
}

// NewComposer constructs a Composer addressing recipients.
func NewComposer(recipients []string, clock func() time.Time) Composer {
	if clock == nil {
		clock = time.Now
	}
	return Composer{applicationName: defaultApplicationNameConstant, recipients: append([]string{}, recipients...), clock: clock}
}

// Success reports a merged, pushed, and verified run.
func (composer Composer) Success(details RunDetails) Message {
	body := composer.header(details, successStatusDescriptionConstant)
	body = appendIfPresent(body, destinationLineTemplateConstant, details.Destination)
	body = appendIfPresent(body, removedBranchesLineTemplate, strings.Join(details.RemovedBranches, removedBranchesSeparator))
	return composer.message(StatusSuccess, details, body)
}

// Failure reports a run that ended in the error area.
func (composer Composer) Failure(details RunDetails, errorKind string, reason string) Message {
	body := composer.header(details, failureStatusDescriptionConstant)
	body = appendIfPresent(body, errorKindLineTemplateConstant, errorKind)
	body = appendIfPresent(body, reasonLineTemplateConstant, reason)
	body = appendIfPresent(body, destinationLineTemplateConstant, details.Destination)
	return composer.message(StatusError, details, body)
}

// Quarantine lists exactly the paths of a non-empty quarantine report.
func (composer Composer) Quarantine(details RunDetails, report quarantine.Report) Message {
	body := composer.header(details, quarantineStatusDescription)
	body = append(body, fmt.Sprintf(dispositionLineTemplateConstant, report.Disposition, report.Bucket))
	body = appendIfPresent(body, archiveDestinationHeaderConstant, report.Destination)
	body = append(body, quarantinedPathsHeaderConstant)
	for _, entry := range report.Entries {
		body = append(body, fmt.Sprintf(quarantinePathLineTemplate, entry.Path, entry.Archived))
	}
	return composer.message(StatusQuarantine, details, body)
}

func (composer Composer) header(details RunDetails, statusDescription string) []string {
	identity := details.Identity
	if len(identity) == 0 {
		identity = details.Repository
	}
	body := []string{
		fmt.Sprintf(timestampLineTemplateConstant, composer.clock().UTC().Format(timestampLayoutConstant)),
		fmt.Sprintf(repositoryLineTemplateConstant, identity),
	}
	body = appendIfPresent(body, branchLineTemplateConstant, details.Branch)
	return append(body, fmt.Sprintf(statusLineTemplateConstant, statusDescription))
}

func (composer Composer) message(status Status, details RunDetails, body []string) Message {
	return Message{
		Subject:    fmt.Sprintf(subjectTemplateConstant, composer.applicationName, status, details.Repository),
		Body:       body,
		Recipients: append([]string{}, composer.recipients...),
	}
}

func appendIfPresent(body []string, template string, value string) []string {
	if len(strings.TrimSpace(value)) == 0 {
		return body
	}
	return append(body, fmt.Sprintf(template, value))
}
