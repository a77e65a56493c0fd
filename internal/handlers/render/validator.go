package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("cpfcnpj", validateCPFCNPJ)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// validateCPFCNPJ accepts a bare-digit CPF (11 digits) or CNPJ (14 digits)
// and verifies the check digits
func validateCPFCNPJ(fl validator.FieldLevel) bool {
	number := fl.Field().String()

	digits := make([]int, 0, len(number))
	for i := 0; i < len(number); i++ {
		n := number[i]
		if n < '0' || n > '9' {
			return false
		}
		digits = append(digits, int(n-'0'))
	}

	switch len(digits) {
	case 11:
		return validCPF(digits)
	case 14:
		return validCNPJ(digits)
	default:
		return false
	}
}

func validCPF(d []int) bool {
	// Sequences like 000... or 111... pass the checksum but are not issued
	allEqual := true
	for _, digit := range d[1:] {
		if digit != d[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return false
	}

	for _, count := range []int{9, 10} {
		sum := 0
		for i := 0; i < count; i++ {
			sum += d[i] * (count + 1 - i)
		}

		check := sum * 10 % 11 % 10
		if check != d[count] {
			return false
		}
	}

	return true
}

func validCNPJ(d []int) bool {
	firstWeights := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	secondWeights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

	for _, weights := range [][]int{firstWeights, secondWeights} {
		sum := 0
		for i, weight := range weights {
			sum += d[i] * weight
		}

		check := sum % 11
		if check < 2 {
			check = 0
		} else {
			check = 11 - check
		}

		if check != d[len(weights)] {
			return false
		}
	}

	return true
}
