// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package auth protects the ops endpoints with HS256 bearer tokens.
//
// Tokens are stateless: they carry the operator name and expire after the
// configured TTL. They are accepted from the Authorization header or, for
// browser websockets that cannot set headers, from the access_token query
// parameter.
package auth
