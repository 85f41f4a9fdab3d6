// Package appauth implements the application-installation credential
// issuer. It signs short-lived RS256 JWT assertions identifying the
// application and exchanges them for installation-scoped tokens, which are
// cached per installation with a 60-second refresh-skew guard.
package appauth
