package alerts

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"relumon/internal/models"
)

var (
	ErrInvalidNumber   = errors.New("invalid number")
	ErrUnknownOperator = errors.New("unknown operator")
)

// CompareNumber evaluates "value op threshold" on exact decimal values.
func CompareNumber(op models.Operator, value, threshold string) (bool, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return false, fmt.Errorf("%w: value %q", ErrInvalidNumber, value)
	}
	th, err := decimal.NewFromString(threshold)
	if err != nil {
		return false, fmt.Errorf("%w: threshold %q", ErrInvalidNumber, threshold)
	}
	switch op {
	case models.OpEq:
		return v.Equal(th), nil
	case models.OpNe:
		return !v.Equal(th), nil
	case models.OpGt:
		return v.GreaterThan(th), nil
	case models.OpGe:
		return v.GreaterThanOrEqual(th), nil
	case models.OpLt:
		return v.LessThan(th), nil
	case models.OpLe:
		return v.LessThanOrEqual(th), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

// CompareString only supports equality; ordering operators never match.
func CompareString(op models.Operator, value, threshold string) bool {
	switch op {
	case models.OpEq:
		return value == threshold
	case models.OpNe:
		return value != threshold
	default:
		return false
	}
}

func compare(valueType models.ValueType, op models.Operator, value, threshold string) (bool, error) {
	switch valueType {
	case models.ValueTypeString:
		return CompareString(op, value, threshold), nil
	case models.ValueTypeNumber:
		return CompareNumber(op, value, threshold)
	default:
		return false, fmt.Errorf("unknown value type %q", valueType)
	}
}

// ValidateItem rejects rules the evaluator could never match.
func ValidateItem(item models.NoticeItem) error {
	if item.MetricsName == "" {
		return errors.New("metricsName is required")
	}
	switch item.MetricsType {
	case models.MetricsTypeClusterInfo, models.MetricsTypeNodeInfo:
	default:
		return fmt.Errorf("unknown metrics type %q", item.MetricsType)
	}
	switch item.Operator {
	case models.OpEq, models.OpNe, models.OpGt, models.OpGe, models.OpLt, models.OpLe:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperator, item.Operator)
	}
	switch item.ValueType {
	case models.ValueTypeString:
	case models.ValueTypeNumber:
		if _, err := decimal.NewFromString(item.Value); err != nil {
			return fmt.Errorf("%w: threshold %q", ErrInvalidNumber, item.Value)
		}
	default:
		return fmt.Errorf("unknown value type %q", item.ValueType)
	}
	return nil
}
