// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides user accounts and stateless bearer-token sessions.
//
// # Domain Types
//
// Users should be created with NewUser, which validates the email, name,
// and role and assigns a fresh ULID. Repository implementations of
// UserDirectory receive pre-validated users.
//
// # Services
//
//   - SessionService - login, bearer authentication, token refresh
//   - AccountService - registration and administrative user management
//
// Services are created with New*Service constructors that validate dependencies.
//
// # Errors
//
// Every error returned by a service carries an oops code (see Code*
// constants). Codes set by a UserDirectory are preserved through the
// service layer.
package auth
