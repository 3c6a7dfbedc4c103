package config

import "course-access-bot/internal/domain/model"

const (
	defaultPaymentInfo    = "Переведите {price} руб на карту Тинькофф: +79063316937 (Нигматдинов И.). В комментарии укажите ваш @username для идентификации."
	defaultActivationSite = "https://umskul.ru/activate"
)

// DefaultCourses is the catalogue used when the config has no courses section.
func DefaultCourses() []model.Course {
	return []model.Course{
		{
			Key:         "course_russian",
			Name:        "Подготовка к ЕГЭ: Русский язык",
			Price:       499,
			Description: "Комплексный курс по русскому языку для ЕГЭ: видеоуроки, тесты, разбор заданий, практика сочинений и анализ типичных ошибок. Идеально для повышения баллов.",
		},
		{
			Key:         "course_history",
			Name:        "Подготовка к ЕГЭ: История",
			Price:       499,
			Description: "Полный курс истории для ЕГЭ: хронология событий, ключевые даты, анализ источников, карты и задания на аргументацию. Подходит для всех уровней.",
		},
		{
			Key:         "course_social",
			Name:        "Подготовка к ЕГЭ: Обществознание",
			Price:       499,
			Description: "Курс обществознания для ЕГЭ: темы права, экономики, политики, социологии. С примерами, тестами и эссе. Помогает структурировать знания.",
		},
		{
			Key:         "course_math",
			Name:        "ЕГЭ: Базовая математика",
			Price:       499,
			Description: "Базовый курс математики для ЕГЭ: алгебра, геометрия, простые задачи. Видеоразборы, тесты и советы по решению.",
		},
		{
			Key:         "course_soft",
			Name:        "Личностный трек от Умскул",
			Price:       199,
			Description: "Персонализированный трек развития: мотивация, планирование, soft skills для учебы и экзаменов. Короткие уроки и упражнения для саморазвития.",
		},
		{
			Key:         "course_full",
			Name:        "Полный пакет ЕГЭ",
			Price:       1499,
			Description: "Доступ ко всем курсам ЕГЭ: русский, история, обществознание, математика + личностный трек. Экономия и полный охват подготовки.",
		},
	}
}
