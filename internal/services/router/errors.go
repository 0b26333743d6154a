package router

import "errors"

var (
	ErrInvalidPool           = errors.New("invalid pool")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrNoPoolFound           = errors.New("no pool found")
	ErrNoRoute               = errors.New("no route found")
	ErrSameToken             = errors.New("token in and token out are the same")
	ErrTokenNotInPool        = errors.New("token not in pool")
	ErrNonPositiveOutput     = errors.New("estimated output is not positive")
	ErrInvalidAmount         = errors.New("invalid amount")
)
