// Package server содержит HTTP-клиенты серверов, с которыми
// работает агент:
//
//   - JobServer  — timeline-обновления, логи, завершение job
//   - TaskServer — каталог определений задач и скачивание архивов
//
// Авторизация берётся из параметров системного подключения job
// (OAuth bearer token или Basic).
package server
