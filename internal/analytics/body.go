package analytics

// Category is one row of a classification table.
type Category struct {
	Key   string `json:"key"`
	Range string `json:"range"`
	Label string `json:"label"`
	// label shown by the original app
	LabelZh string `json:"labelZh"`
}

var CategoryUnknown = Category{Key: "unknown", Range: "N/A", Label: "Not enough data", LabelZh: "数据不足"}

var (
	BMIUnderweight = Category{Key: "underweight", Range: "< 18.5", Label: "Underweight", LabelZh: "体重过低"}
	BMINormal      = Category{Key: "normal", Range: "18.5 - 23.9", Label: "Normal", LabelZh: "体重正常"}
	BMIOverweight  = Category{Key: "overweight", Range: "24.0 - 27.9", Label: "Overweight", LabelZh: "超重"}
	BMIObese       = Category{Key: "obese", Range: "≥ 28.0", Label: "Obese", LabelZh: "肥胖"}
)

var (
	RatioStraight      = Category{Key: "straight", Range: "≤ 1.0", Label: "Straight", LabelZh: "直筒"}
	RatioBalanced      = Category{Key: "balanced", Range: "1.0 - 1.2", Label: "Balanced", LabelZh: "匀称"}
	RatioStandard      = Category{Key: "standard", Range: "1.2 - 1.3", Label: "Standard", LabelZh: "标准"}
	RatioGood          = Category{Key: "good", Range: "1.3 - 1.4", Label: "Good proportion", LabelZh: "比例良好"}
	RatioBroadShoulder = Category{Key: "broad_shoulders", Range: "1.4 - 1.5", Label: "Broad shoulders, narrow waist", LabelZh: "宽肩窄腰"}
	RatioInverted      = Category{Key: "inverted_triangle", Range: "> 1.5", Label: "Inverted triangle", LabelZh: "倒三角"}
)

var BMICategories = []Category{BMIUnderweight, BMINormal, BMIOverweight, BMIObese}

var RatioCategories = []Category{RatioStraight, RatioBalanced, RatioStandard, RatioGood, RatioBroadShoulder, RatioInverted}

// BMI is weight / height², defined only for a positive weight and height.
func BMI(weightKg, heightCm float64) (float64, bool) {
	if weightKg <= 0 || heightCm <= 0 {
		return 0, false
	}
	heightM := heightCm / 100
	return weightKg / (heightM * heightM), true
}

// ShoulderWaistRatio is defined only for a positive waist.
func ShoulderWaistRatio(shoulderCm, waistCm float64) (float64, bool) {
	if waistCm <= 0 {
		return 0, false
	}
	return shoulderCm / waistCm, true
}

// ClassifyBMI uses half open bands, so values such as 23.95 land in the
// lower band instead of falling between the printed ranges.
func ClassifyBMI(bmi float64, ok bool) Category {
	switch {
	case !ok || bmi <= 0:
		return CategoryUnknown
	case bmi < 18.5:
		return BMIUnderweight
	case bmi < 24:
		return BMINormal
	case bmi < 28:
		return BMIOverweight
	default:
		return BMIObese
	}
}

func ClassifyShoulderWaistRatio(ratio float64, ok bool) Category {
	switch {
	case !ok || ratio <= 0:
		return CategoryUnknown
	case ratio <= 1.0:
		return RatioStraight
	case ratio <= 1.2:
		return RatioBalanced
	case ratio <= 1.3:
		return RatioStandard
	case ratio <= 1.4:
		return RatioGood
	case ratio <= 1.5:
		return RatioBroadShoulder
	default:
		return RatioInverted
	}
}
