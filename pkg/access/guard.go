// Package access decides what a visitor sees on a protected page: a loading
// placeholder, a redirect to login, an in-place Access Denied view, or the
// page itself. It holds the per-route role allow-lists and the fixed landing
// page of each role.
package access

import (
	"net/url"
	"strings"

	"github.com/synaptica-ai/casereview/pkg/common/models"
)

// AuthState is where the session stands when a page is requested.
type AuthState int

const (
	Unauthenticated AuthState = iota
	// Loading means a valid token exists but the profile is not known yet.
	Loading
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	}
	return "unauthenticated"
}

type Outcome int

const (
	Placeholder Outcome = iota
	Render
	RedirectLogin
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect_login"
	case Denied:
		return "denied"
	}
	return "placeholder"
}

// Decision is the guard's answer. Back is the landing page offered from the
// Access Denied view.
type Decision struct {
	Outcome Outcome
	Back    string
}

// Decide never renders children while Loading, and never redirects a signed in
// user who lacks the role. An empty allow-list admits any authenticated user.
func Decide(state AuthState, role models.Role, allowed []models.Role) Decision {
	switch state {
	case Loading:
		return Decision{Outcome: Placeholder}
	case Unauthenticated:
		return Decision{Outcome: RedirectLogin}
	}
	if Allowed(role, allowed) {
		return Decision{Outcome: Render}
	}
	return Decision{Outcome: Denied, Back: Landing(role)}
}

func Allowed(role models.Role, allowed []models.Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// Landing is the page each role is sent to after login.
func Landing(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return "/dashboard"
	case models.RoleDocUploader:
		return "/upload"
	case models.RoleMedicalDirector:
		return "/intelligence"
	}
	return "/profile"
}

// LoginURL is the login page carrying the originally requested path.
func LoginURL(next string) string {
	if next == "" || next == "/" || next == "/login" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}

// SafeNext accepts only local absolute paths so the login form cannot be used
// as an open redirect.
func SafeNext(next string) (string, bool) {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "", false
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "", false
	}
	return next, true
}

var (
	adminOnly    = []models.Role{models.RoleAdmin}
	reviewers    = []models.Role{models.RoleAdmin, models.RoleMedicalDirector}
	uploaders    = []models.Role{models.RoleAdmin, models.RoleDocUploader}
	anyKnownRole = models.AllRoles
)

// Route names one protected page and who may see it.
type Route struct {
	Name    string
	Allowed []models.Role
}

var (
	RouteDashboard    = Route{Name: "dashboard", Allowed: adminOnly}
	RouteDonors       = Route{Name: "donors", Allowed: reviewers}
	RouteDocuments    = Route{Name: "documents", Allowed: anyKnownRole}
	RouteQueue        = Route{Name: "queue", Allowed: reviewers}
	RouteSummary      = Route{Name: "summary", Allowed: reviewers}
	RouteUpload       = Route{Name: "upload", Allowed: uploaders}
	RouteIntelligence = Route{Name: "intelligence", Allowed: reviewers}
	RouteProfile      = Route{Name: "profile"}
	RouteSettings     = Route{Name: "settings"}
	RouteFeedback     = Route{Name: "feedback"}
)

// Routes lists every protected page.
var Routes = []Route{
	RouteDashboard, RouteDonors, RouteDocuments, RouteQueue, RouteSummary,
	RouteUpload, RouteIntelligence, RouteProfile, RouteSettings, RouteFeedback,
}

// CanApprove reports whether role may record approval decisions.
func CanApprove(role models.Role) bool {
	return Allowed(role, reviewers)
}
