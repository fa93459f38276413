package controller

import "github.com/MrEthical07/adminAuth"

// State is the observable auth state.
type State struct {
	User            *adminAuth.PublicUser
	IsAuthenticated bool
	IsLoading       bool
	OTPStep         bool
	TempEmail       string
	Error           string
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// View is the screen a protected route renders.
type View uint8

const (
	ViewLoading View = iota
	ViewOTP
	ViewLogin
	ViewContent
)

func (v View) String() string {
	switch v {
	case ViewLoading:
		return "loading"
	case ViewOTP:
		return "otp"
	case ViewLogin:
		return "login"
	default:
		return "content"
	}
}

// View picks the screen: loading first, then the OTP form while a code is
// pending, then the login form unless a user is signed in.
func (s State) View() View {
	switch {
	case s.IsLoading:
		return ViewLoading
	case s.OTPStep && s.TempEmail != "":
		return ViewOTP
	case !s.IsAuthenticated || s.User == nil:
		return ViewLogin
	default:
		return ViewContent
	}
}

func sameUser(a, b *adminAuth.PublicUser) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
