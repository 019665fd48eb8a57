// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	CorruptVersionFileId Id = iota + 1
	CandidatesExhaustedId
	IntegrityMismatchId
	ExtractionToolMissingId
	CredentialRejectedId
	HashSourceUnavailableId
	ConfigLoadFailedId
	UpdateInProgressId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	Issue struct {
		id       Id          // ID used to lookup the issue
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

// Title is the guide's first heading without the leading "#" marks.
func (i *Issue) Title() string {
	first, _, _ := strings.Cut(strings.TrimSpace(string(i.mdMsg)), "\n")
	return strings.TrimSpace(strings.TrimLeft(first, "#"))
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the guide as terminal Markdown. stylePath is a glamour
// style name ("dark", "light", "notty") or a path to a JSON style file.
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range slices.Concat(i.docLinks, i.extLinks) {
			md.WriteString("\n- <")
			md.WriteString(string(link))
			md.WriteString(">")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	corruptVersionFileIssue = &Issue{
		id: CorruptVersionFileId,
		mdMsg: `
# The local version record is unreadable

` + "`version.json`" + ` exists but does not contain valid JSON, so the updater
cannot tell which version is installed.

## Things you can try
- Delete ` + "`version.json`" + ` in the SRA folder. A fresh record with version
  0.0.0 is created on the next run, which makes the updater fetch the latest
  release.
- Restore the file from a backup if you keep custom proxy entries in it.`,
	}

	candidatesExhaustedIssue = &Issue{
		id: CandidatesExhaustedId,
		mdMsg: `
# Every download source failed

The updater tried the licensed mirror (when a CDK is set) and every proxy in
the ` + "`Proxys`" + ` list of ` + "`version.json`" + `, and none delivered the package.

## Things you can try
- Check your network connection and retry later.
- Pass ` + "`--proxy https://your.mirror/`" + ` to try an extra mirror first.
- Pass ` + "`--no-proxy`" + ` if you can reach GitHub directly.
- Configure a Mirror酱 CDK with ` + "`sra-updater settings`" + `.`,
		extLinks: []HttpLink{"https://mirrorchyan.com"},
	}

	integrityMismatchIssue = &Issue{
		id: IntegrityMismatchId,
		mdMsg: `
# The downloaded package failed verification

The SHA-256 digest of the archive did not match the published value twice in a
row, so the file was deleted and nothing was installed.

## Things you can try
- Retry later; the mirror may still be syncing a new release.
- Try another mirror with ` + "`--proxy`" + ` or ` + "`--no-proxy`" + `.`,
	}

	extractionToolMissingIssue = &Issue{
		id: ExtractionToolMissingId,
		mdMsg: `
# The extraction tool was not found

The package was downloaded and verified, but ` + "`tools/7z.exe`" + ` is missing,
so it could not be unpacked automatically.

## Things you can try
- Extract the archive shown above into the SRA folder by hand, overwriting
  existing files.
- Reinstall SRA from the full package to restore the tools folder.
- Point ` + "`extract.tool`" + ` in the updater config at another 7-Zip binary.`,
	}

	credentialRejectedIssue = &Issue{
		id: CredentialRejectedId,
		mdMsg: `
# Mirror酱 rejected the CDK

The licensed download API refused the configured CDK, so the updater fell back
to the public mirrors.

## Things you can try
- Check the CDK with ` + "`sra-updater settings --show-only`" + `.
- Renew an expired CDK or wait for the daily quota to reset.`,
		extLinks: []HttpLink{"https://mirrorchyan.com"},
	}

	hashSourceUnavailableIssue = &Issue{
		id: HashSourceUnavailableId,
		mdMsg: `
# The checksum source is unreachable

The release metadata did not include a SHA-256 digest and the trusted hash
endpoint could not be reached. Packages are never installed unverified.

## Things you can try
- Retry later.
- Use a CDK so the licensed API returns the digest with the download URL.`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# The updater configuration could not be loaded

## Things you can try
- Check the CUE syntax of the config file.
- Remove the file to fall back to built-in defaults.`,
		docLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	updateInProgressIssue = &Issue{
		id: UpdateInProgressId,
		mdMsg: `
# An update is already running

Only one update may run at a time. Wait for the other run to finish.`,
	}

	issues = map[Id]*Issue{
		corruptVersionFileIssue.Id():    corruptVersionFileIssue,
		candidatesExhaustedIssue.Id():   candidatesExhaustedIssue,
		integrityMismatchIssue.Id():     integrityMismatchIssue,
		extractionToolMissingIssue.Id(): extractionToolMissingIssue,
		credentialRejectedIssue.Id():    credentialRejectedIssue,
		hashSourceUnavailableIssue.Id(): hashSourceUnavailableIssue,
		configLoadFailedIssue.Id():      configLoadFailedIssue,
		updateInProgressIssue.Id():      updateInProgressIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
