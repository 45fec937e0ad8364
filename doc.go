// Package auth is the authentication and authorization core of LinkLift.
//
// Credentials and sessions:
//   - AuthenticationService verifies a username or email plus password and
//     issues a short lived HS256 access token and a stored refresh token.
//     Unknown identifiers and wrong passwords fail the same way.
//   - Refresh tokens are single use. RefreshToken claims the stored row with a
//     compare and swap, so concurrent rotations of one token yield exactly one
//     new pair.
//   - Logout revokes one refresh token, RevokeAllTokens every token of a user.
//
// Authorization:
//   - AuthorizationService turns a bearer token into a SecurityContext whose
//     permissions are re-read from a PermissionSource on every request.
//     Roles map to permissions through a fixed table.
//   - The jwtware package attaches that context to go-router requests and
//     provides guard middleware for authentication and permissions.
//
// Accounts:
//   - RegistrationService validates and creates users.
//   - PasswordResetService issues and redeems PASSWORD_RESET tokens.
//   - TokenSweeper removes expired and long used tokens.
//
// Storage is Bun backed (see NewRepositoryManager and the persistence
// package) and runs against PostgreSQL or SQLite.
package auth
