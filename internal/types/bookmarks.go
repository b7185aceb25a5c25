package types

type BookmarkId string

type ProfileId string

type LoginId string

// Principal is the identity produced by Basic authentication. It carries
// nothing beyond the login name and the realm it was checked against.
type Principal struct {
	Username string
	Realm    string
}
