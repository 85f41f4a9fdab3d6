package appauth

import (
	"time"
)

// RepositoryScope describes how an installation's repository access is
// granted.
const (
	// RepositoryScopeAll means the installation can reach every repository
	// the owning account has.
	RepositoryScopeAll = "all"

	// RepositoryScopeSelected means access is limited to an explicit list.
	RepositoryScopeSelected = "selected"
)

// InstallationCredential is a short-lived token scoped to one application
// installation. Instances are owned exclusively by the issuer's cache;
// callers receive copies by pointer and must treat them as read-only.
type InstallationCredential struct {
	InstallationID int64
	Value          string
	ExpiresAt      time.Time

	// Permissions maps permission names to their granted level
	// (for example "contents" -> "read").
	Permissions map[string]string

	// RepositoryScope is "all" or "selected".
	RepositoryScope string

	// Repositories is populated only for selected-scope installations
	// whose token response enumerated them.
	Repositories []Repository
}

// Installation describes one installation of the application.
type Installation struct {
	ID      int64  `json:"id"`
	Account Actor  `json:"account"`
	AppID   int64  `json:"app_id"`
	Target  string `json:"target_type"`
}

// Actor is the owning account of an installation or repository.
type Actor struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Repository identifies one repository reachable through an installation.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    Actor  `json:"owner"`
}

// installationTokenResponse is the wire shape of the token endpoint reply.
type installationTokenResponse struct {
	Token               string            `json:"token"`
	ExpiresAt           time.Time         `json:"expires_at"`
	Permissions         map[string]string `json:"permissions"`
	RepositorySelection string            `json:"repository_selection"`
	Repositories        []Repository      `json:"repositories"`
}

// repositoryListResponse is the wire shape of the installation repository
// listing.
type repositoryListResponse struct {
	TotalCount   int          `json:"total_count"`
	Repositories []Repository `json:"repositories"`
}
