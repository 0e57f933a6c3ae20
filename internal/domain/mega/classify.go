package mega

// Единицы размера для порогов классификации.
const (
	kb = int64(1024)
	mb = 1024 * kb
)

// Classification — оценка типа файла по размеру.
// IsVideo и IsImage никогда не равны true одновременно; оба false — «прочее».
type Classification struct {
	IsVideo    bool
	IsImage    bool
	Confidence float64
}

// videoThresholds — пороги «видео», по убыванию размера; побеждает первый.
var videoThresholds = []struct {
	minExclusive int64
	confidence   float64
}{
	{500 * mb, 0.95},
	{100 * mb, 0.85},
	{50 * mb, 0.75},
	{20 * mb, 0.60},
	{10 * mb, 0.45},
}

// ClassifyBySize относит файл к видео, изображению или прочему только по размеру.
// Имена файлов зашифрованы, поэтому размер — единственный доступный признак,
// и счётчики, построенные на этой функции, являются оценками.
func ClassifyBySize(size int64) Classification {
	for _, t := range videoThresholds {
		if size > t.minExclusive {
			return Classification{IsVideo: true, Confidence: t.confidence}
		}
	}

	if size >= 100*kb && size <= 10*mb {
		switch {
		case size > 5*mb:
			return Classification{IsImage: true, Confidence: 0.70}
		case size > 1*mb:
			return Classification{IsImage: true, Confidence: 0.80}
		case size > 500*kb:
			return Classification{IsImage: true, Confidence: 0.75}
		default:
			return Classification{IsImage: true, Confidence: 0.65}
		}
	}

	// Маленькие файлы почти наверняка не медиа.
	return Classification{Confidence: 0.90}
}
