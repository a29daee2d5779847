package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidAddress   = errors.New("invalid mailbox address")
	ErrAddressTooLong   = errors.New("address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
)

// RFC 5322 地址长度限制
const (
	MaxAddressLength   = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253
)

var domainLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// NormalizeAddress 规范化邮箱地址：去空白、去尖括号、统一小写。
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.Trim(address, "<>")
	return strings.ToLower(address)
}

// ValidateAddress 验证邮箱地址的语法合法性。
//
// 只做语法校验，不检查域名是否在允许列表中。
func ValidateAddress(address string) error {
	address = NormalizeAddress(address)
	if address == "" {
		return ErrInvalidAddress
	}
	if len(address) > MaxAddressLength {
		return ErrAddressTooLong
	}

	if _, err := mail.ParseAddress(address); err != nil {
		return ErrInvalidAddress
	}

	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return ErrInvalidAddress
	}

	localPart, domainPart := parts[0], parts[1]
	if localPart == "" || len(localPart) > MaxLocalPartLength {
		if len(localPart) > MaxLocalPartLength {
			return ErrLocalPartTooLong
		}
		return ErrInvalidAddress
	}

	return validateDomainPart(domainPart)
}

// AddressDomain 返回地址的域名部分（小写）；地址非法时返回空串。
func AddressDomain(address string) string {
	address = NormalizeAddress(address)
	idx := strings.LastIndex(address, "@")
	if idx <= 0 || idx == len(address)-1 {
		return ""
	}
	return address[idx+1:]
}

// validateDomainPart 验证域名部分的每个标签。
func validateDomainPart(domainPart string) error {
	if domainPart == "" {
		return ErrInvalidAddress
	}
	if len(domainPart) > MaxDomainLength {
		return ErrDomainTooLong
	}

	labels := strings.Split(domainPart, ".")
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return ErrInvalidAddress
		}
		if !domainLabelRegex.MatchString(label) {
			return ErrInvalidAddress
		}
	}
	return nil
}
