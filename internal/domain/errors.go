package domain

import "errors"

var ErrAlreadyExists = errors.New("already exists")
