package netatmo

import "errors"

// Failure taxonomy shared by the auth, catalog, measure and syncer packages.
// Callers classify with errors.Is; underlying causes are wrapped with %w.
var (
	// ErrAuthRequired means no valid token is cached and none could be
	// refreshed; the caller has to authenticate with credentials.
	ErrAuthRequired = errors.New("authentication required")

	// ErrRefreshTokenMissing means a refresh was attempted without a stored
	// refresh token.
	ErrRefreshTokenMissing = errors.New("refresh token not found")

	// ErrTokenRefreshFailed wraps the transport or decode failure of a
	// refresh round trip.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrMalformedAuthResponse means the OAuth endpoint answered without the
	// fields a token grant must carry.
	ErrMalformedAuthResponse = errors.New("malformed auth response")

	// ErrCatalogParse means the devicelist response could not be decoded or
	// a device entry is missing a required field.
	ErrCatalogParse = errors.New("device catalog parse error")

	// ErrTransport wraps a failed HTTP round trip.
	ErrTransport = errors.New("transport error")

	// ErrMeasurementParse means the getmeasure response could not be decoded.
	ErrMeasurementParse = errors.New("measurement parse error")
)
