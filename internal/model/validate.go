package model

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate 对从存储层反序列化或从接口接收的记录做结构校验
func Validate(v interface{}) error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate.Struct(v)
}
