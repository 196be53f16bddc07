package auth

// TokenExpired exposes the token expiry check to the external test
// package.
var TokenExpired = tokenExpired
