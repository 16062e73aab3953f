package mongo

import "errors"

var (
	ErrEmptyConnectionURL     = errors.New("mongo: empty connection url")
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongo")
	ErrHealthcheckFailed      = errors.New("mongo healthcheck failed")
)
