package config

// DefaultBaseLetter seeds the facts the generator may draw on until the user
// stores their own letter.
const DefaultBaseLetter = `Здравствуйте!

Меня заинтересовала ваша вакансия. У меня есть опыт работы более полутора лет, в течение которых я занимался проведением проектов, управлением коллективом (4–8 человек), руководил разработкой и продвижением образовательного проекта (сайт, дизайн продукта, маркетинг), координировал дизайн и разработку. Владею Jira и Bitrix24, отлично знаю MS Office и документооборот (включая ЭДО).

Высшее экономическое образование (финансы и управление бизнесом).

Буду рад обсудить детали и ответить на вопросы.`
