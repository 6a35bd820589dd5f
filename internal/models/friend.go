package models

// Friend is one accepted friendship, seen from the side of the user it was listed for.
type Friend struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}
