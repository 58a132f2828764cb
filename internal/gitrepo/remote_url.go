package gitrepo

import (
	"fmt"
	"path"
	"strings"
)

const (
	sshProtocolPrefixConstant           = "ssh://"
	sshUserDelimiterConstant            = "@"
	sshPathDelimiterConstant            = ":"
	httpsProtocolPrefixConstant         = "https://"
	fileProtocolPrefixConstant          = "file://"
	pathSeparatorConstant               = "/"
	gitSuffixConstant                   = ".git"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	requiredValueMessageConstant        = "value required"
	repositoryNameRequiredMessage       = "repository name required"
	remoteIdentityTemplateConstant      = "%s/%s"
	remoteFailureUnknownDetailConstant  = "remote did not answer"
	remoteNotFoundDetailConstant        = "remote repository not found"
	remoteAccessDeniedDetailConstant    = "access to remote repository denied"
	remoteNetworkDetailConstant         = "remote host unreachable"
)

// RemoteProtocol enumerates the transports a remote URL can use.
type RemoteProtocol string

// Supported remote protocols.
const (
	RemoteProtocolSSH   RemoteProtocol = RemoteProtocol("ssh")
	RemoteProtocolHTTPS RemoteProtocol = RemoteProtocol("https")
	RemoteProtocolLocal RemoteProtocol = RemoteProtocol("local")
)

// RemoteURL is the structured form of a remote location.
type RemoteURL struct {
	Protocol   RemoteProtocol
	Host       string
	Owner      string
	Repository string
}

// Identity renders owner/repository, or just the repository when there is no owner.
func (remote RemoteURL) Identity() string {
	if len(remote.Owner) == 0 {
		return remote.Repository
	}
	return fmt.Sprintf(remoteIdentityTemplateConstant, remote.Owner, remote.Repository)
}

// RemoteURLParseError indicates a remote string could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// BuildRemoteURL appends the repository name and the .git suffix to a configured prefix such as
// "git@github.com:acme/" or "/srv/git/".
func BuildRemoteURL(prefix string, repositoryName string) (string, error) {
	trimmedName := strings.TrimSpace(repositoryName)
	if len(trimmedName) == 0 {
		return "", RemoteURLParseError{Input: repositoryName, Message: repositoryNameRequiredMessage}
	}
	trimmedPrefix := strings.TrimSpace(prefix)
	if len(trimmedPrefix) == 0 {
		return "", RemoteURLParseError{Input: prefix, Message: requiredValueMessageConstant}
	}
	return trimmedPrefix + trimmedName + gitSuffixConstant, nil
}

// ParseRemoteURL converts a textual remote into its structured form. SSH, HTTPS, file:// and plain
// filesystem paths are recognised.
func ParseRemoteURL(remote string) (RemoteURL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	switch {
	case strings.HasPrefix(trimmedRemote, sshProtocolPrefixConstant):
		return parseSSHRemote(strings.TrimPrefix(trimmedRemote, sshProtocolPrefixConstant))
	case strings.HasPrefix(trimmedRemote, httpsProtocolPrefixConstant):
		return parseHTTPSRemote(strings.TrimPrefix(trimmedRemote, httpsProtocolPrefixConstant))
	case strings.HasPrefix(trimmedRemote, fileProtocolPrefixConstant):
		return parseLocalRemote(strings.TrimPrefix(trimmedRemote, fileProtocolPrefixConstant))
	case strings.HasPrefix(trimmedRemote, pathSeparatorConstant):
		return parseLocalRemote(trimmedRemote)
	case strings.Contains(trimmedRemote, sshUserDelimiterConstant):
		return parseSSHRemote(trimmedRemote)
	}

	return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
}

func parseSSHRemote(remote string) (RemoteURL, error) {
	userSplitIndex := strings.Index(remote, sshUserDelimiterConstant)
	if userSplitIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	hostAndPath := remote[userSplitIndex+1:]
	separatorIndex := strings.IndexAny(hostAndPath, sshPathDelimiterConstant+pathSeparatorConstant)
	if separatorIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	owner, repository, parseError := splitOwnerAndRepository(hostAndPath[separatorIndex+1:])
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Protocol: RemoteProtocolSSH, Host: hostAndPath[:separatorIndex], Owner: owner, Repository: repository}, nil
}

func parseHTTPSRemote(remote string) (RemoteURL, error) {
	separatorIndex := strings.Index(remote, pathSeparatorConstant)
	if separatorIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	owner, repository, parseError := splitOwnerAndRepository(remote[separatorIndex+1:])
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Protocol: RemoteProtocolHTTPS, Host: remote[:separatorIndex], Owner: owner, Repository: repository}, nil
}

func parseLocalRemote(location string) (RemoteURL, error) {
	cleaned := path.Clean(location)
	repository, parseError := normalizeRepositoryName(path.Base(cleaned))
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Protocol: RemoteProtocolLocal, Repository: repository}, nil
}

func splitOwnerAndRepository(remotePath string) (string, string, error) {
	trimmedPath := strings.Trim(remotePath, pathSeparatorConstant)
	lastSeparator := strings.LastIndex(trimmedPath, pathSeparatorConstant)
	if lastSeparator == -1 {
		repository, parseError := normalizeRepositoryName(trimmedPath)
		return "", repository, parseError
	}
	repository, parseError := normalizeRepositoryName(trimmedPath[lastSeparator+1:])
	if parseError != nil {
		return "", "", parseError
	}
	return trimmedPath[:lastSeparator], repository, nil
}

func normalizeRepositoryName(repository string) (string, error) {
	trimmed := strings.TrimSuffix(repository, gitSuffixConstant)
	if len(trimmed) == 0 || trimmed == "." || trimmed == pathSeparatorConstant {
		return "", RemoteURLParseError{Input: repository, Message: invalidRemoteURLMessageConstant}
	}
	return trimmed, nil
}

// describeRemoteFailure condenses ls-remote diagnostics into a short reason.
func describeRemoteFailure(standardError string) string {
	lowered := strings.ToLower(standardError)
	switch {
	case strings.Contains(lowered, "not found"),
		strings.Contains(lowered, "does not exist"),
		strings.Contains(lowered, "does not appear to be a git repository"):
		return remoteNotFoundDetailConstant
	case strings.Contains(lowered, "permission denied"),
		strings.Contains(lowered, "authentication failed"),
		strings.Contains(lowered, "could not read username"):
		return remoteAccessDeniedDetailConstant
	case strings.Contains(lowered, "could not resolve host"),
		strings.Contains(lowered, "connection refused"),
		strings.Contains(lowered, "connection timed out"),
		strings.Contains(lowered, "network is unreachable"):
		return remoteNetworkDetailConstant
	}
	firstLine := strings.TrimSpace(strings.SplitN(strings.TrimSpace(standardError), "\n", 2)[0])
	if len(firstLine) == 0 {
		return remoteFailureUnknownDetailConstant
	}
	return firstLine
}
